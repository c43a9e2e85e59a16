package monitoring

import (
	"context"
	"net/http"

	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/logger"
	"github.com/dao-forum/reconciler/src/utils/task"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Rest API server, serves monitor counters, metrics and additional routes
type Server struct {
	*task.Task

	httpServer *http.Server
	Router     *gin.Engine
	V1         *gin.RouterGroup

	registry *prometheus.Registry
}

func NewServer(config *config.Config) (self *Server) {
	self = new(Server)

	self.Task = task.NewTask(config, "server").
		WithSubtaskFunc(self.run).
		WithOnStop(self.stop)

	if config.IsDevelopment {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	self.Router = gin.New()
	self.Router.Use(
		gin.LoggerWithWriter(logger.Writer("gin", logrus.DebugLevel)),
		gin.Recovery(),
	)
	self.V1 = self.Router.Group("v1")

	self.registry = prometheus.NewRegistry()
	self.Router.GET("metrics", gin.WrapH(promhttp.HandlerFor(self.registry, promhttp.HandlerOpts{})))

	if config.Profiler.Enabled {
		pprof.Register(self.Router)
	}

	self.httpServer = &http.Server{
		Addr:    self.Config.RESTListenAddress,
		Handler: self.Router,
	}

	return
}

func (self *Server) WithMonitor(monitor Monitor) *Server {
	self.registry.MustRegister(monitor.GetPrometheusCollector())

	self.V1.GET("health", monitor.OnGetHealth)
	self.V1.GET("state", monitor.OnGetState)

	return self
}

// Registers additional routes under /v1
func (self *Server) WithRoutes(register func(v1 *gin.RouterGroup)) *Server {
	register(self.V1)
	return self
}

func (self *Server) run() (err error) {
	self.Log.WithField("address", self.httpServer.Addr).Info("Starting REST server")

	err = self.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		self.Log.WithError(err).Error("Failed to start REST server")
		return
	}
	return nil
}

func (self *Server) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), self.Config.StopTimeout)
	defer cancel()

	err := self.httpServer.Shutdown(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to gracefully shutdown REST server")
		return
	}
}
