package lifecycle

import (
	"errors"
	"os"

	"go.uber.org/zap"
)

const (
	logFieldLabelConstant       = "label"
	logFieldReturnCodeConstant  = "return_code"
	logFieldExitedConstant      = "exited"
	logFieldActionConstant      = "action"
	logFieldElapsedConstant     = "elapsed"
	logFieldSignalConstant      = "signal"
	logFieldStdoutBytesConstant = "stdout_bytes"
	logFieldStderrBytesConstant = "stderr_bytes"
)

// LoggingListener writes lifecycle events to a zap logger.
type LoggingListener struct {
	logger    *zap.Logger
	formatter MessageFormatter
}

// NewLoggingListener constructs a listener writing to logger. A nil logger discards events.
func NewLoggingListener(logger *zap.Logger) *LoggingListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingListener{logger: logger}
}

// SupervisionStarted logs the start of background observation.
func (listener *LoggingListener) SupervisionStarted(event SupervisionEvent) {
	listener.logger.Debug(
		listener.formatter.BuildSupervisionStartedMessage(event),
		zap.String(logFieldLabelConstant, event.Label),
	)
}

// SupervisionFinished logs the final state of an observed process.
func (listener *LoggingListener) SupervisionFinished(event SupervisionEvent) {
	fields := []zap.Field{
		zap.String(logFieldLabelConstant, event.Label),
		zap.Duration(logFieldElapsedConstant, event.Snapshot.TimeElapsed),
		zap.Int(logFieldStdoutBytesConstant, len(event.Snapshot.StdoutData)),
		zap.Int(logFieldStderrBytesConstant, len(event.Snapshot.StderrData)),
	}
	if event.Snapshot.ReturnCode != nil {
		fields = append(fields, zap.Int(logFieldReturnCodeConstant, *event.Snapshot.ReturnCode))
	}
	listener.logger.Info(listener.formatter.BuildSupervisionFinishedMessage(event), fields...)
}

// ObserverFailed logs an observer failure.
func (listener *LoggingListener) ObserverFailed(event SupervisionEvent, failure error) {
	listener.logger.Error(
		listener.formatter.BuildObserverFailedMessage(event, failure),
		zap.String(logFieldLabelConstant, event.Label),
		zap.Error(failure),
	)
}

// SignalSent logs a terminate or kill attempt. Signals that found the
// process already gone are logged at debug level.
func (listener *LoggingListener) SignalSent(event SignalEvent) {
	message := listener.formatter.BuildSignalMessage(event)
	fields := []zap.Field{
		zap.String(logFieldLabelConstant, event.Label),
		zap.String(logFieldSignalConstant, string(event.Signal)),
	}
	switch {
	case event.Failure == nil:
		listener.logger.Info(message, fields...)
	case errors.Is(event.Failure, os.ErrProcessDone):
		listener.logger.Debug(message, fields...)
	default:
		listener.logger.Warn(message, append(fields, zap.Error(event.Failure))...)
	}
}

// EscalationCompleted logs the outcome of a wait-or-terminate call.
func (listener *LoggingListener) EscalationCompleted(event EscalationEvent) {
	fields := []zap.Field{
		zap.String(logFieldLabelConstant, event.Label),
		zap.Bool(logFieldExitedConstant, event.Exited),
		zap.String(logFieldActionConstant, event.Action),
		zap.Duration(logFieldElapsedConstant, event.Elapsed),
	}
	if event.Exited {
		fields = append(fields, zap.Int(logFieldReturnCodeConstant, event.ReturnCode))
	}
	listener.logger.Info(listener.formatter.BuildEscalationMessage(event), fields...)
}
