package report

import "go.uber.org/atomic"

type DaoSyncerErrors struct {
	JobFailures          atomic.Uint64 `json:"job_failures"`
	JobRetries           atomic.Uint64 `json:"job_retries"`
	JobsDropped          atomic.Uint64 `json:"jobs_dropped"`
	ConfigurationErrors  atomic.Uint64 `json:"configuration_errors"`
	DecodeErrors         atomic.Uint64 `json:"decode_errors"`
	SweepFailures        atomic.Uint64 `json:"sweep_failures"`
	DraftCleanupFailures atomic.Uint64 `json:"draft_cleanup_failures"`
}

type DaoSyncerState struct {
	JobsStarted         atomic.Uint64 `json:"jobs_started"`
	JobsSucceeded       atomic.Uint64 `json:"jobs_succeeded"`
	JobsSkippedLocked   atomic.Uint64 `json:"jobs_skipped_locked"`
	ConsecutiveFailures atomic.Int64  `json:"consecutive_failures"`

	OrganizationsCreated  atomic.Uint64 `json:"organizations_created"`
	OrganizationsSynced   atomic.Uint64 `json:"organizations_synced"`
	ProposalsDiscovered   atomic.Uint64 `json:"proposals_discovered"`
	DraftsBound           atomic.Uint64 `json:"drafts_bound"`
	DraftsDeleted         atomic.Uint64 `json:"drafts_deleted"`
	ProposalsTransitioned atomic.Uint64 `json:"proposals_transitioned"`
	DriftsDetected        atomic.Uint64 `json:"drifts_detected"`
	VotesInserted         atomic.Uint64 `json:"votes_inserted"`
	TreasuriesUpdated     atomic.Uint64 `json:"treasuries_updated"`
	PresalesCreated       atomic.Uint64 `json:"presales_created"`
	PresalesCompleted     atomic.Uint64 `json:"presales_completed"`
	StakesRefreshed       atomic.Uint64 `json:"stakes_refreshed"`

	AverageJobDurationMs atomic.Float64 `json:"average_job_duration_ms"`
}

type DaoSyncerReport struct {
	State  DaoSyncerState  `json:"state"`
	Errors DaoSyncerErrors `json:"errors"`
}
