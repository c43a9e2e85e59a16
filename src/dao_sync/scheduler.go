package dao_sync

import (
	"fmt"

	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/task"

	"github.com/robfig/cron"
)

// Scheduler triggers the periodic sweep and the draft cleanup.
// An empty schedule disables the corresponding job.
type Scheduler struct {
	*task.Task

	cron       *cron.Cron
	dispatcher *Dispatcher
}

func NewScheduler(config *config.Config) (self *Scheduler) {
	self = new(Scheduler)
	self.cron = cron.New()

	self.Task = task.NewTask(config, "scheduler").
		WithOnBeforeStart(self.schedule).
		WithSubtaskFunc(self.run)

	return
}

func (self *Scheduler) WithDispatcher(dispatcher *Dispatcher) *Scheduler {
	self.dispatcher = dispatcher
	return self
}

func (self *Scheduler) schedule() (err error) {
	jobs := []struct {
		name string
		spec string
		f    func()
	}{
		{"sweep", self.Config.Reconciler.SweepSchedule, self.dispatcher.Sweep},
		{"draft_cleanup", self.Config.Reconciler.DraftCleanupSchedule, self.dispatcher.CleanupDrafts},
	}

	for _, job := range jobs {
		if job.spec == "" {
			self.Log.WithField("job", job.name).Info("No schedule, job disabled")
			continue
		}

		err = self.cron.AddFunc(job.spec, job.f)
		if err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", job.name, job.spec, err)
		}
		self.Log.WithField("job", job.name).WithField("schedule", job.spec).Info("Scheduled")
	}
	return
}

func (self *Scheduler) run() error {
	self.cron.Start()
	<-self.StopChannel
	self.cron.Stop()
	return nil
}
