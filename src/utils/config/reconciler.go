package config

import (
	"time"

	"github.com/spf13/viper"
)

type Reconciler struct {
	// Cron spec of the periodic sweep over active organizations
	SweepSchedule string

	// Cron spec of the removal of abandoned drafts
	DraftCleanupSchedule string

	// Drafts never bound to an on-chain proposal are removed after this time
	DraftMaxAge time.Duration

	// Attempts of a whole sync job
	JobAttempts int

	// Fixed delay between job attempts
	JobDelay time.Duration

	// Number of workers running sync jobs
	NumWorkers int

	// Max number of jobs waiting for a worker
	WorkerQueueSize int

	// Per-organization lock expiration. A live holder extends it every third of the TTL,
	// so it only bounds how long a crashed worker blocks the organization.
	LockTtl time.Duration

	// Prefix of the lock keys
	LockPrefix string

	// Time after the voting end when a proposal with votes that was never
	// executed becomes REJECTED. 0 leaves such proposals ACTIVE.
	ExecutionGracePeriod time.Duration
}

func setReconcilerDefaults() {
	viper.SetDefault("Reconciler.SweepSchedule", "@every 5m")
	viper.SetDefault("Reconciler.DraftCleanupSchedule", "@every 1h")
	viper.SetDefault("Reconciler.DraftMaxAge", "24h")
	viper.SetDefault("Reconciler.JobAttempts", "3")
	viper.SetDefault("Reconciler.JobDelay", "2s")
	viper.SetDefault("Reconciler.NumWorkers", "10")
	viper.SetDefault("Reconciler.WorkerQueueSize", "100")
	viper.SetDefault("Reconciler.LockTtl", "1m")
	viper.SetDefault("Reconciler.LockPrefix", "reconciler:lock:")
	viper.SetDefault("Reconciler.ExecutionGracePeriod", "168h")
}
