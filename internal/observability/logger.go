package observability

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/block/storefront/internal/log"
)

type logSink struct {
	keyValues map[string]interface{}
	logger    *log.Logger
}

// NewOtelLogger adapts our logger to the logr interface OTEL logs through.
func NewOtelLogger(logger *log.Logger, level log.Level) logr.Logger {
	sink := &logSink{
		logger: logger.Scope("otel").Level(level),
	}
	return logr.New(sink)
}

var _ logr.LogSink = &logSink{}

func (l *logSink) Init(info logr.RuntimeInfo) {
}

func (l logSink) Enabled(level int) bool {
	return otelLevelToLevel(level) >= l.logger.GetLevel()
}

func (l logSink) Info(level int, msg string, kvs ...interface{}) {
	logMsg := msg + " "
	for k, v := range l.keyValues {
		logMsg += fmt.Sprintf("%s: %+v  ", k, v)
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		logMsg += fmt.Sprintf("%s: %+v  ", kvs[i], kvs[i+1])
	}
	l.logger.Logf(otelLevelToLevel(level), "%s", logMsg)
}

func (l logSink) Error(err error, msg string, kvs ...interface{}) {
	l.logger.Errorf(err, "%s", msg)
}

func (l logSink) WithName(name string) logr.LogSink {
	return &logSink{
		keyValues: l.keyValues,
		logger:    l.logger.Scope(name),
	}
}

func (l logSink) WithValues(kvs ...interface{}) logr.LogSink {
	newMap := make(map[string]interface{}, len(l.keyValues)+len(kvs)/2)
	for k, v := range l.keyValues {
		newMap[k] = v
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		newMap[fmt.Sprint(kvs[i])] = kvs[i+1]
	}
	return &logSink{
		keyValues: newMap,
		logger:    l.logger,
	}
}

// otel uses 8 for debug, 4 for info, 1 for warnings and 0 for errors.
func otelLevelToLevel(level int) log.Level {
	switch level {
	case 4:
		return log.Info
	case 8:
		return log.Debug
	case 1:
		return log.Warn
	case 0:
		return log.Error
	default:
		return log.Trace
	}
}
