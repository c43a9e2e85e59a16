package dao_sync

import (
	"errors"
	"time"

	"github.com/dao-forum/reconciler/src/reconcile"
	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/lock"
	"github.com/dao-forum/reconciler/src/utils/monitoring"
	"github.com/dao-forum/reconciler/src/utils/task"

	"github.com/sirupsen/logrus"
)

// Dispatcher runs sync jobs on a worker pool. Each job holds its organization's
// lock and is retried as a whole when it fails with a retryable error.
type Dispatcher struct {
	*task.Task

	service *reconcile.Service
	locker  lock.Locker
	monitor monitoring.Monitor

	input chan *Job
}

func NewDispatcher(config *config.Config) (self *Dispatcher) {
	self = new(Dispatcher)

	self.input = make(chan *Job, config.Reconciler.WorkerQueueSize)

	self.Task = task.NewTask(config, "dispatcher").
		WithSubtaskFunc(self.run).
		WithWorkerPool(config.Reconciler.NumWorkers, config.Reconciler.WorkerQueueSize)

	return
}

func (self *Dispatcher) WithService(service *reconcile.Service) *Dispatcher {
	self.service = service
	return self
}

func (self *Dispatcher) WithLocker(locker lock.Locker) *Dispatcher {
	self.locker = locker
	return self
}

func (self *Dispatcher) WithMonitor(monitor monitoring.Monitor) *Dispatcher {
	self.monitor = monitor
	return self
}

// Submit queues the job without waiting. False if the queue is full.
func (self *Dispatcher) Submit(job *Job) bool {
	if self.IsStopping.Load() {
		return false
	}

	select {
	case self.input <- job:
		return true
	default:
		self.monitor.GetReport().DaoSyncer.Errors.JobsDropped.Inc()
		self.Log.WithField("job_id", job.Id).Warn("Job queue full, dropping job")
		return false
	}
}

func (self *Dispatcher) SubmitOrganization(organizationId uint64) (jobId string, ok bool) {
	job := NewOrganizationJob(organizationId)
	return job.Id, self.Submit(job)
}

func (self *Dispatcher) SubmitProposal(organizationId, proposalId uint64) (jobId string, ok bool) {
	job := NewProposalJob(organizationId, proposalId)
	return job.Id, self.Submit(job)
}

// Queues a sync of every active organization
func (self *Dispatcher) Sweep() {
	ids, err := self.service.ActiveOrganizationIds(self.Ctx)
	if err != nil {
		self.monitor.GetReport().DaoSyncer.Errors.SweepFailures.Inc()
		self.Log.WithError(err).Error("Failed to list organizations")
		return
	}

	self.Log.WithField("count", len(ids)).Debug("Sweep")
	for _, id := range ids {
		self.SubmitOrganization(id)
	}
}

func (self *Dispatcher) CleanupDrafts() {
	_, err := self.service.CleanupDrafts(self.Ctx, self.Config.Reconciler.DraftMaxAge)
	if err != nil {
		self.monitor.GetReport().DaoSyncer.Errors.DraftCleanupFailures.Inc()
		self.Log.WithError(err).Error("Failed to remove stale drafts")
	}
}

func (self *Dispatcher) run() error {
	for {
		select {
		case <-self.StopChannel:
			self.Log.Debug("Dispatcher stopped")
			return nil
		case job := <-self.input:
			if !self.SubmitToWorker(func() { self.execute(job) }) {
				self.monitor.GetReport().DaoSyncer.Errors.JobsDropped.Inc()
				self.Log.WithField("job_id", job.Id).Warn("Stopping, job dropped")
			}
		}
	}
}

func (self *Dispatcher) execute(job *Job) {
	report := self.monitor.GetReport().DaoSyncer
	log := self.Log.WithFields(logrus.Fields{
		"job_id":          job.Id,
		"kind":            job.Kind,
		"organization_id": job.OrganizationId,
	})
	if job.Kind == JobKindProposal {
		log = log.WithField("proposal_id", job.ProposalId)
	}

	// Queued jobs finish during shutdown, but stop as soon as the lock is lost
	ctx, unlock, ok, err := self.locker.TryLock(self.CtxRunning, job.LockKey())
	if err != nil {
		report.Errors.JobFailures.Inc()
		log.WithError(err).Error("Failed to acquire organization lock")
		return
	}
	if !ok {
		report.State.JobsSkippedLocked.Inc()
		log.Info("Organization is already being synced, skipping")
		return
	}
	defer unlock()

	report.State.JobsStarted.Inc()
	start := time.Now()

	err = task.NewRetry().
		WithContext(ctx).
		WithMaxAttempts(self.Config.Reconciler.JobAttempts).
		WithDelay(self.Config.Reconciler.JobDelay).
		WithIsRetryable(eth.IsRetryable).
		WithOnError(func(err error, attempt int) {
			report.Errors.JobRetries.Inc()
			log.WithError(err).WithField("attempt", attempt).Warn("Sync failed, retrying")
		}).
		Run(func() error {
			return job.Run(ctx, self.service)
		})

	duration := time.Since(start)
	self.monitor.RecordJobDuration(duration)

	if err != nil {
		switch {
		case errors.Is(err, eth.ErrConfiguration):
			report.Errors.ConfigurationErrors.Inc()
		case errors.Is(err, eth.ErrDecode):
			report.Errors.DecodeErrors.Inc()
		}
		report.Errors.JobFailures.Inc()
		report.State.ConsecutiveFailures.Inc()
		log.WithError(err).WithField("retryable", eth.IsRetryable(err)).Error("Sync failed")
		return
	}

	report.State.JobsSucceeded.Inc()
	report.State.ConsecutiveFailures.Store(0)
	log.WithField("duration", duration).Info("Sync finished")
}
