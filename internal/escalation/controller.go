package escalation

import (
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/procwatch/internal/handle"
	"github.com/temirov/procwatch/internal/lifecycle"
)

const (
	// DefaultPollInterval is the polling granularity used when none is supplied.
	DefaultPollInterval = 50 * time.Millisecond
	// KillSettleDelay is how long a killed process is given to go away before
	// it is polled once more.
	KillSettleDelay = 10 * time.Millisecond

	loggerNotConfiguredMessageConstant = "escalation controller logger not configured"
	handleRequiredMessageConstant      = "process handle must be provided"
	waitStartedMessageConstant         = "waiting for process"
	waitExpiredMessageConstant         = "wait expired with process still running"
	logFieldTimeoutConstant            = "timeout"
	logFieldPollIntervalConstant       = "poll_interval"
	logFieldKillPolicyConstant         = "kill_policy"
	logFieldLabelConstant              = "label"
)

var (
	// ErrLoggerNotConfigured indicates NewController was called without a logger.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrHandleRequired indicates a wait was requested without a process handle.
	ErrHandleRequired = errors.New(handleRequiredMessageConstant)
)

// Result is the outcome of WaitOrTerminate. ReturnCode is meaningful only
// when Exited is true; a kill leaves it unknown.
type Result struct {
	ReturnCode int    `json:"returnCode" yaml:"returnCode"`
	Exited     bool   `json:"exited" yaml:"exited"`
	Action     Action `json:"actionTaken" yaml:"actionTaken"`
}

// ControllerConfiguration customises a Controller.
type ControllerConfiguration struct {
	Label    string
	Listener lifecycle.Listener
}

// Controller runs bounded waits and escalation on the caller's goroutine.
type Controller struct {
	logger   *zap.Logger
	listener lifecycle.Listener
	label    string
}

// NewController constructs a controller that logs through logger.
func NewController(logger *zap.Logger, configuration ControllerConfiguration) (*Controller, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Controller{
		logger:   logger,
		listener: lifecycle.Resolve(configuration.Listener),
		label:    configuration.Label,
	}, nil
}

var defaultController = &Controller{logger: zap.NewNop(), listener: lifecycle.NoopListener{}}

// WaitUpTo waits for processHandle using a silent controller.
func WaitUpTo(processHandle handle.Handle, timeout time.Duration, pollInterval time.Duration) (int, bool, error) {
	return defaultController.WaitUpTo(processHandle, timeout, pollInterval)
}

// WaitOrTerminate waits for processHandle and escalates using a silent controller.
func WaitOrTerminate(processHandle handle.Handle, timeout time.Duration, pollInterval time.Duration, killPolicy KillPolicy) (Result, error) {
	return defaultController.WaitOrTerminate(processHandle, timeout, pollInterval, killPolicy)
}

// WaitUpTo polls processHandle every pollInterval until it exits or timeout
// is spent, overrunning by at most one interval. It returns the exit code and
// true when the process exited. A non-positive pollInterval selects
// DefaultPollInterval. Errors come only from Poll.
func (controller *Controller) WaitUpTo(processHandle handle.Handle, timeout time.Duration, pollInterval time.Duration) (int, bool, error) {
	if processHandle == nil {
		return 0, false, ErrHandleRequired
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	controller.logger.Debug(
		waitStartedMessageConstant,
		zap.String(logFieldLabelConstant, controller.label),
		zap.Duration(logFieldTimeoutConstant, timeout),
		zap.Duration(logFieldPollIntervalConstant, pollInterval),
	)
	return waitUpTo(processHandle, timeout, pollInterval)
}

func waitUpTo(processHandle handle.Handle, timeout time.Duration, pollInterval time.Duration) (int, bool, error) {
	returnCode, exited, pollError := processHandle.Poll()
	if pollError != nil || exited {
		return returnCode, exited, pollError
	}

	waitCount := float64(timeout) / float64(pollInterval)
	for iteration := 0; float64(iteration) < waitCount; iteration++ {
		time.Sleep(pollInterval)
		returnCode, exited, pollError = processHandle.Poll()
		if pollError != nil || exited {
			return returnCode, exited, pollError
		}
	}
	return 0, false, nil
}

// WaitOrTerminate waits like WaitUpTo and, if the process is still running,
// applies killPolicy:
//
//   - NeverKill sends terminate, sleeps one poll interval and polls once.
//   - KillImmediately sends kill without terminating, settles briefly and
//     reaps; the exit code is reported unknown.
//   - KillAfter sends terminate, waits up to the policy delay with the same
//     poll interval, and kills if the process is still running.
//
// A signal that finds the process already gone is not recorded in the
// action, and the exit status collected afterwards is reported. Other signal
// failures are logged and do not change the outcome.
func (controller *Controller) WaitOrTerminate(processHandle handle.Handle, timeout time.Duration, pollInterval time.Duration, killPolicy KillPolicy) (Result, error) {
	if processHandle == nil {
		return Result{}, ErrHandleRequired
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	startTime := time.Now()
	result, escalationError := controller.waitOrTerminate(processHandle, timeout, pollInterval, killPolicy)
	if escalationError != nil {
		return result, escalationError
	}

	controller.listener.EscalationCompleted(lifecycle.EscalationEvent{
		Label:      controller.label,
		ReturnCode: result.ReturnCode,
		Exited:     result.Exited,
		Action:     result.Action.String(),
		Elapsed:    time.Since(startTime),
	})
	return result, nil
}

func (controller *Controller) waitOrTerminate(processHandle handle.Handle, timeout time.Duration, pollInterval time.Duration, killPolicy KillPolicy) (Result, error) {
	returnCode, exited, pollError := controller.WaitUpTo(processHandle, timeout, pollInterval)
	if pollError != nil || exited {
		return Result{ReturnCode: returnCode, Exited: exited, Action: ActionCompleted}, pollError
	}

	controller.logger.Debug(
		waitExpiredMessageConstant,
		zap.String(logFieldLabelConstant, controller.label),
		zap.Duration(logFieldTimeoutConstant, timeout),
		zap.Stringer(logFieldKillPolicyConstant, killPolicy),
	)

	switch {
	case !killPolicy.Kills():
		action := ActionCompleted
		if controller.signal(processHandle.Terminate, lifecycle.SignalTerminate) {
			action |= ActionTerminated
		}
		time.Sleep(pollInterval)
		returnCode, exited, pollError = processHandle.Poll()
		return Result{ReturnCode: returnCode, Exited: exited, Action: action}, pollError
	case killPolicy.Immediate():
		return controller.kill(processHandle, ActionCompleted)
	default:
		action := ActionCompleted
		if controller.signal(processHandle.Terminate, lifecycle.SignalTerminate) {
			action |= ActionTerminated
		}
		returnCode, exited, pollError = waitUpTo(processHandle, killPolicy.Delay(), pollInterval)
		if pollError != nil || exited {
			return Result{ReturnCode: returnCode, Exited: exited, Action: action}, pollError
		}
		return controller.kill(processHandle, action)
	}
}

// kill sends kill, waits KillSettleDelay and polls once so the process is
// reaped. The exit code of a killed process is reported unknown.
func (controller *Controller) kill(processHandle handle.Handle, action Action) (Result, error) {
	delivered := controller.signal(processHandle.Kill, lifecycle.SignalKill)
	time.Sleep(KillSettleDelay)
	returnCode, exited, pollError := processHandle.Poll()
	if pollError != nil {
		return Result{Action: action}, pollError
	}
	if !delivered && exited {
		return Result{ReturnCode: returnCode, Exited: true, Action: action}, nil
	}
	return Result{Action: action | ActionKilled}, nil
}

// signal sends one control signal and reports whether it should count as
// sent. A process that is already gone does not count; other failures do,
// since the outcome is decided by the next poll.
func (controller *Controller) signal(send func() error, signalKind lifecycle.SignalKind) bool {
	signalError := send()
	controller.listener.SignalSent(lifecycle.SignalEvent{
		Label:   controller.label,
		Signal:  signalKind,
		Failure: signalError,
	})
	return !errors.Is(signalError, os.ErrProcessDone)
}
