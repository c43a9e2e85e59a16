package monitor_dao_syncer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	monitor *Monitor

	// Run
	UpForSeconds *prometheus.Desc

	// Errors
	JobFailures          *prometheus.Desc
	JobRetries           *prometheus.Desc
	JobsDropped          *prometheus.Desc
	ConfigurationErrors  *prometheus.Desc
	DecodeErrors         *prometheus.Desc
	SweepFailures        *prometheus.Desc
	DraftCleanupFailures *prometheus.Desc

	// State
	JobsStarted           *prometheus.Desc
	JobsSucceeded         *prometheus.Desc
	JobsSkippedLocked     *prometheus.Desc
	OrganizationsCreated  *prometheus.Desc
	OrganizationsSynced   *prometheus.Desc
	ProposalsDiscovered   *prometheus.Desc
	DraftsBound           *prometheus.Desc
	DraftsDeleted         *prometheus.Desc
	ProposalsTransitioned *prometheus.Desc
	DriftsDetected        *prometheus.Desc
	VotesInserted         *prometheus.Desc
	TreasuriesUpdated     *prometheus.Desc
	PresalesCreated       *prometheus.Desc
	PresalesCompleted     *prometheus.Desc
	StakesRefreshed       *prometheus.Desc
	ConsecutiveFailures   *prometheus.Desc
	AverageJobDurationMs  *prometheus.Desc
}

func NewCollector() *Collector {
	return &Collector{
		UpForSeconds: prometheus.NewDesc("up_for_seconds", "", nil, nil),

		// Errors
		JobFailures:          prometheus.NewDesc("dao_syncer_job_failures", "", nil, nil),
		JobRetries:           prometheus.NewDesc("dao_syncer_job_retries", "", nil, nil),
		JobsDropped:          prometheus.NewDesc("dao_syncer_jobs_dropped", "", nil, nil),
		ConfigurationErrors:  prometheus.NewDesc("dao_syncer_configuration_errors", "", nil, nil),
		DecodeErrors:         prometheus.NewDesc("dao_syncer_decode_errors", "", nil, nil),
		SweepFailures:        prometheus.NewDesc("dao_syncer_sweep_failures", "", nil, nil),
		DraftCleanupFailures: prometheus.NewDesc("dao_syncer_draft_cleanup_failures", "", nil, nil),

		// State
		JobsStarted:           prometheus.NewDesc("dao_syncer_jobs_started", "", nil, nil),
		JobsSucceeded:         prometheus.NewDesc("dao_syncer_jobs_succeeded", "", nil, nil),
		JobsSkippedLocked:     prometheus.NewDesc("dao_syncer_jobs_skipped_locked", "", nil, nil),
		OrganizationsCreated:  prometheus.NewDesc("dao_syncer_organizations_created", "", nil, nil),
		OrganizationsSynced:   prometheus.NewDesc("dao_syncer_organizations_synced", "", nil, nil),
		ProposalsDiscovered:   prometheus.NewDesc("dao_syncer_proposals_discovered", "", nil, nil),
		DraftsBound:           prometheus.NewDesc("dao_syncer_drafts_bound", "", nil, nil),
		DraftsDeleted:         prometheus.NewDesc("dao_syncer_drafts_deleted", "", nil, nil),
		ProposalsTransitioned: prometheus.NewDesc("dao_syncer_proposals_transitioned", "", nil, nil),
		DriftsDetected:        prometheus.NewDesc("dao_syncer_drifts_detected", "", nil, nil),
		VotesInserted:         prometheus.NewDesc("dao_syncer_votes_inserted", "", nil, nil),
		TreasuriesUpdated:     prometheus.NewDesc("dao_syncer_treasuries_updated", "", nil, nil),
		PresalesCreated:       prometheus.NewDesc("dao_syncer_presales_created", "", nil, nil),
		PresalesCompleted:     prometheus.NewDesc("dao_syncer_presales_completed", "", nil, nil),
		StakesRefreshed:       prometheus.NewDesc("dao_syncer_stakes_refreshed", "", nil, nil),
		ConsecutiveFailures:   prometheus.NewDesc("dao_syncer_consecutive_failures", "", nil, nil),
		AverageJobDurationMs:  prometheus.NewDesc("dao_syncer_average_job_duration_ms", "", nil, nil),
	}
}

func (self *Collector) WithMonitor(m *Monitor) *Collector {
	self.monitor = m
	return self
}

func (self *Collector) Describe(ch chan<- *prometheus.Desc) {
	// Run
	ch <- self.UpForSeconds

	// Errors
	ch <- self.JobFailures
	ch <- self.JobRetries
	ch <- self.JobsDropped
	ch <- self.ConfigurationErrors
	ch <- self.DecodeErrors
	ch <- self.SweepFailures
	ch <- self.DraftCleanupFailures

	// State
	ch <- self.JobsStarted
	ch <- self.JobsSucceeded
	ch <- self.JobsSkippedLocked
	ch <- self.OrganizationsCreated
	ch <- self.OrganizationsSynced
	ch <- self.ProposalsDiscovered
	ch <- self.DraftsBound
	ch <- self.DraftsDeleted
	ch <- self.ProposalsTransitioned
	ch <- self.DriftsDetected
	ch <- self.VotesInserted
	ch <- self.TreasuriesUpdated
	ch <- self.PresalesCreated
	ch <- self.PresalesCompleted
	ch <- self.StakesRefreshed
	ch <- self.ConsecutiveFailures
	ch <- self.AverageJobDurationMs
}

// Collect implements required collect function for all promehteus collectors
func (self *Collector) Collect(ch chan<- prometheus.Metric) {
	r := self.monitor.Report.DaoSyncer

	// Run
	ch <- prometheus.MustNewConstMetric(self.UpForSeconds, prometheus.GaugeValue, float64(self.monitor.Report.Run.State.UpForSeconds.Load()))

	// Errors
	ch <- prometheus.MustNewConstMetric(self.JobFailures, prometheus.CounterValue, float64(r.Errors.JobFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobRetries, prometheus.CounterValue, float64(r.Errors.JobRetries.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsDropped, prometheus.CounterValue, float64(r.Errors.JobsDropped.Load()))
	ch <- prometheus.MustNewConstMetric(self.ConfigurationErrors, prometheus.CounterValue, float64(r.Errors.ConfigurationErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.DecodeErrors, prometheus.CounterValue, float64(r.Errors.DecodeErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.SweepFailures, prometheus.CounterValue, float64(r.Errors.SweepFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.DraftCleanupFailures, prometheus.CounterValue, float64(r.Errors.DraftCleanupFailures.Load()))

	// State
	ch <- prometheus.MustNewConstMetric(self.JobsStarted, prometheus.CounterValue, float64(r.State.JobsStarted.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsSucceeded, prometheus.CounterValue, float64(r.State.JobsSucceeded.Load()))
	ch <- prometheus.MustNewConstMetric(self.JobsSkippedLocked, prometheus.CounterValue, float64(r.State.JobsSkippedLocked.Load()))
	ch <- prometheus.MustNewConstMetric(self.OrganizationsCreated, prometheus.CounterValue, float64(r.State.OrganizationsCreated.Load()))
	ch <- prometheus.MustNewConstMetric(self.OrganizationsSynced, prometheus.CounterValue, float64(r.State.OrganizationsSynced.Load()))
	ch <- prometheus.MustNewConstMetric(self.ProposalsDiscovered, prometheus.CounterValue, float64(r.State.ProposalsDiscovered.Load()))
	ch <- prometheus.MustNewConstMetric(self.DraftsBound, prometheus.CounterValue, float64(r.State.DraftsBound.Load()))
	ch <- prometheus.MustNewConstMetric(self.DraftsDeleted, prometheus.CounterValue, float64(r.State.DraftsDeleted.Load()))
	ch <- prometheus.MustNewConstMetric(self.ProposalsTransitioned, prometheus.CounterValue, float64(r.State.ProposalsTransitioned.Load()))
	ch <- prometheus.MustNewConstMetric(self.DriftsDetected, prometheus.CounterValue, float64(r.State.DriftsDetected.Load()))
	ch <- prometheus.MustNewConstMetric(self.VotesInserted, prometheus.CounterValue, float64(r.State.VotesInserted.Load()))
	ch <- prometheus.MustNewConstMetric(self.TreasuriesUpdated, prometheus.CounterValue, float64(r.State.TreasuriesUpdated.Load()))
	ch <- prometheus.MustNewConstMetric(self.PresalesCreated, prometheus.CounterValue, float64(r.State.PresalesCreated.Load()))
	ch <- prometheus.MustNewConstMetric(self.PresalesCompleted, prometheus.CounterValue, float64(r.State.PresalesCompleted.Load()))
	ch <- prometheus.MustNewConstMetric(self.StakesRefreshed, prometheus.CounterValue, float64(r.State.StakesRefreshed.Load()))
	ch <- prometheus.MustNewConstMetric(self.ConsecutiveFailures, prometheus.GaugeValue, float64(r.State.ConsecutiveFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.AverageJobDurationMs, prometheus.GaugeValue, float64(r.State.AverageJobDurationMs.Load()))
}
