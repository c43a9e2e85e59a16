package monitoring

import (
	"time"

	"github.com/dao-forum/reconciler/src/utils/monitoring/report"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Monitor interface {
	GetReport() *report.Report
	GetPrometheusCollector() (collector prometheus.Collector)
	RecordJobDuration(d time.Duration)
	OnGetState(c *gin.Context)
	OnGetHealth(c *gin.Context)
}
