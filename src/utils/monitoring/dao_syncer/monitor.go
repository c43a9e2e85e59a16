package monitor_dao_syncer

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/dao-forum/reconciler/src/utils/monitoring/report"
	"github.com/dao-forum/reconciler/src/utils/task"

	"github.com/gammazero/deque"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Unhealthy after this many jobs in a row failed
const maxConsecutiveFailures = 10

// Stores and computes monitor counters
type Monitor struct {
	*task.Task

	Report report.Report

	collector *Collector

	// Recent job durations
	mtx          sync.Mutex
	historySize  int
	JobDurations *deque.Deque[time.Duration]
}

func NewMonitor() (self *Monitor) {
	self = new(Monitor)

	self.Report = report.Report{
		Run:       &report.RunReport{},
		DaoSyncer: &report.DaoSyncerReport{},
	}

	// Initialization
	self.Report.Run.State.StartTimestamp.Store(time.Now().Unix())

	self.collector = NewCollector().WithMonitor(self)

	self.Task = task.NewTask(nil, "monitor").
		WithPeriodicSubtaskFunc(time.Minute, self.monitorUptime)

	return self.WithMaxHistorySize(100)
}

func (self *Monitor) WithMaxHistorySize(maxHistorySize int) *Monitor {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	self.historySize = maxHistorySize
	self.JobDurations = deque.New[time.Duration](self.historySize)
	return self
}

func (self *Monitor) GetReport() *report.Report {
	return &self.Report
}

func (self *Monitor) GetPrometheusCollector() (collector prometheus.Collector) {
	return self.collector
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}

// Keeps a moving average of the last historySize jobs
func (self *Monitor) RecordJobDuration(d time.Duration) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	self.JobDurations.PushBack(d)
	if self.JobDurations.Len() > self.historySize {
		self.JobDurations.PopFront()
	}

	var sum time.Duration
	for i := 0; i < self.JobDurations.Len(); i++ {
		sum += self.JobDurations.At(i)
	}
	value := float64(sum.Milliseconds()) / float64(self.JobDurations.Len())
	self.Report.DaoSyncer.State.AverageJobDurationMs.Store(round(value))
}

func (self *Monitor) monitorUptime() (err error) {
	self.Report.Run.State.UpForSeconds.Store(uint64(time.Now().Unix() - self.Report.Run.State.StartTimestamp.Load()))
	return
}

func (self *Monitor) IsOK() bool {
	return self.Report.DaoSyncer.State.ConsecutiveFailures.Load() < maxConsecutiveFailures
}

func (self *Monitor) OnGetState(c *gin.Context) {
	_ = self.monitorUptime()
	c.JSON(http.StatusOK, &self.Report)
}

func (self *Monitor) OnGetHealth(c *gin.Context) {
	if self.IsOK() {
		c.Status(http.StatusOK)
	} else {
		c.Status(http.StatusServiceUnavailable)
	}
}
