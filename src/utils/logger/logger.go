package logger

import (
	"io"
	"os"

	"github.com/dao-forum/reconciler/src/utils/config"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
}

func Init(config *config.Config) (err error) {
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)

	if config.IsDevelopment {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return nil
}

func NewSublogger(tag string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{"module": "dao." + tag})
}

// Writer routes third party output (e.g. HTTP access logs) through logrus at the given level
func Writer(tag string, level logrus.Level) io.Writer {
	return NewSublogger(tag).WriterLevel(level)
}
