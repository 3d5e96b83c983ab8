package logrus

import (
	"github.com/sirupsen/logrus"
	rlog "github.com/unkn0wn-root/regioncache/log"
)

var _ rlog.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f rlog.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f rlog.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f rlog.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f rlog.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
