package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	supervisionStartedTemplateConstant      = "Observing %s"
	supervisionFinishedTemplateConstant     = "%s exited with code %d after %s (captured %s stdout, %s stderr)"
	observerFailedTemplateConstant          = "Observer for %s stopped: %s"
	signalDeliveredTemplateConstant         = "Sent %s to %s"
	signalFailedTemplateConstant            = "Could not send %s to %s: %s"
	escalationCompletedTemplateConstant     = "%s exited with code %d after %s"
	escalationSignalledTemplateConstant     = "%s exited with code %d after %s (%s)"
	escalationUnknownStatusTemplateConstant = "%s was stopped after %s (%s); exit status unknown"
	unknownFailureMessageConstant           = "unknown error"
	defaultProcessLabelConstant             = "process"
	completedActionLabelConstant            = "completed"
	durationRoundingConstant                = time.Millisecond
)

// MessageFormatter builds human-readable messages for lifecycle events.
type MessageFormatter struct{}

// BuildSupervisionStartedMessage formats the message for a newly observed process.
func (formatter MessageFormatter) BuildSupervisionStartedMessage(event SupervisionEvent) string {
	return fmt.Sprintf(supervisionStartedTemplateConstant, formatter.formatLabel(event.Label))
}

// BuildSupervisionFinishedMessage formats the message for a finished record.
func (formatter MessageFormatter) BuildSupervisionFinishedMessage(event SupervisionEvent) string {
	returnCode := 0
	if event.Snapshot.ReturnCode != nil {
		returnCode = *event.Snapshot.ReturnCode
	}
	return fmt.Sprintf(
		supervisionFinishedTemplateConstant,
		formatter.formatLabel(event.Label),
		returnCode,
		formatter.formatDuration(event.Snapshot.TimeElapsed),
		humanize.Bytes(uint64(len(event.Snapshot.StdoutData))),
		humanize.Bytes(uint64(len(event.Snapshot.StderrData))),
	)
}

// BuildObserverFailedMessage formats the message for an observer failure.
func (formatter MessageFormatter) BuildObserverFailedMessage(event SupervisionEvent, failure error) string {
	return fmt.Sprintf(observerFailedTemplateConstant, formatter.formatLabel(event.Label), formatter.formatFailure(failure))
}

// BuildSignalMessage formats the message for a delivered or failed signal.
func (formatter MessageFormatter) BuildSignalMessage(event SignalEvent) string {
	if event.Failure != nil {
		return fmt.Sprintf(signalFailedTemplateConstant, event.Signal, formatter.formatLabel(event.Label), formatter.formatFailure(event.Failure))
	}
	return fmt.Sprintf(signalDeliveredTemplateConstant, event.Signal, formatter.formatLabel(event.Label))
}

// BuildEscalationMessage formats the message for an escalation outcome.
func (formatter MessageFormatter) BuildEscalationMessage(event EscalationEvent) string {
	label := formatter.formatLabel(event.Label)
	elapsed := formatter.formatDuration(event.Elapsed)
	switch {
	case !event.Exited:
		return fmt.Sprintf(escalationUnknownStatusTemplateConstant, label, elapsed, event.Action)
	case len(event.Action) == 0 || event.Action == completedActionLabelConstant:
		return fmt.Sprintf(escalationCompletedTemplateConstant, label, event.ReturnCode, elapsed)
	default:
		return fmt.Sprintf(escalationSignalledTemplateConstant, label, event.ReturnCode, elapsed, event.Action)
	}
}

func (formatter MessageFormatter) formatLabel(label string) string {
	trimmedLabel := strings.TrimSpace(label)
	if len(trimmedLabel) == 0 {
		return defaultProcessLabelConstant
	}
	return trimmedLabel
}

func (formatter MessageFormatter) formatDuration(duration time.Duration) string {
	return duration.Round(durationRoundingConstant).String()
}

func (formatter MessageFormatter) formatFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}
