package dao_sync

import (
	"github.com/dao-forum/reconciler/src/reconcile"
	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/eth"
	"github.com/dao-forum/reconciler/src/utils/lock"
	"github.com/dao-forum/reconciler/src/utils/model"
	"github.com/dao-forum/reconciler/src/utils/monitoring"
	monitor_dao_syncer "github.com/dao-forum/reconciler/src/utils/monitoring/dao_syncer"
	"github.com/dao-forum/reconciler/src/utils/task"
)

type Controller struct {
	*task.Task
}

// Main class that orchestrates the reconciliation: periodic sweeps,
// on-demand triggers and the monitoring endpoints
func NewController(config *config.Config) (self *Controller, err error) {
	self = new(Controller)
	self.Task = task.NewTask(config, "dao_syncer")

	// SQL database
	db, err := model.NewConnection(self.Ctx, config, "dao_syncer")
	if err != nil {
		return
	}

	// Contract interfaces
	abis, err := eth.LoadAbiRegistry(self.Ctx, &config.Chain)
	if err != nil {
		self.Log.WithError(err).Error("Failed to load ABI bundle")
		return
	}

	// One RPC client per network, connected on first use
	pool := eth.NewPool(&config.Chain).
		WithAbiRegistry(abis)

	// Per-organization locks
	var locker lock.Locker = lock.NewLocalLocker()
	if config.Redis.Enabled {
		redisLocker := lock.NewRedisLocker(config)
		err = redisLocker.Connect(self.Ctx)
		if err != nil {
			return
		}
		locker = redisLocker
		self.Task = self.Task.WithOnAfterStop(redisLocker.Close)
	}

	// Monitoring
	monitor := monitor_dao_syncer.NewMonitor()

	service := reconcile.NewService(config).
		WithDB(db).
		WithPool(pool).
		WithMonitor(monitor)

	dispatcher := NewDispatcher(config).
		WithService(service).
		WithLocker(locker).
		WithMonitor(monitor)

	scheduler := NewScheduler(config).
		WithDispatcher(dispatcher)

	server := monitoring.NewServer(config).
		WithMonitor(monitor).
		WithRoutes(NewHandlers(service, dispatcher).Register)

	self.Task = self.Task.
		WithSubtask(monitor.Task).
		WithSubtask(dispatcher.Task).
		WithSubtask(scheduler.Task).
		WithConditionalSubtask(config.RESTListenAddress != "", server.Task).
		WithOnAfterStop(func() {
			pool.Close()

			sqlDB, err := db.DB()
			if err != nil {
				return
			}
			err = sqlDB.Close()
			if err != nil {
				self.Log.WithError(err).Error("Failed to close database")
			}
		})

	return
}
