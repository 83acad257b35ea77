package lifecycle

import (
	"time"

	"github.com/temirov/procwatch/internal/taskrecord"
)

// SignalKind identifies the control signal delivered to a process.
type SignalKind string

// Supported signal kinds.
const (
	SignalTerminate SignalKind = SignalKind("terminate")
	SignalKill      SignalKind = SignalKind("kill")
)

// SupervisionEvent describes a process observed in the background.
type SupervisionEvent struct {
	Label    string
	Snapshot taskrecord.Snapshot
}

// SignalEvent describes a terminate or kill request. Failure is nil when the
// signal was delivered.
type SignalEvent struct {
	Label   string
	Signal  SignalKind
	Failure error
}

// EscalationEvent describes the outcome of a bounded wait with escalation.
type EscalationEvent struct {
	Label      string
	ReturnCode int
	Exited     bool
	Action     string
	Elapsed    time.Duration
}

// Listener receives supervision lifecycle notifications.
type Listener interface {
	// SupervisionStarted notifies that a background observer began watching a process.
	SupervisionStarted(event SupervisionEvent)
	// SupervisionFinished notifies that the observed process exited and the record is final.
	SupervisionFinished(event SupervisionEvent)
	// ObserverFailed reports a failure that ended a background observer.
	ObserverFailed(event SupervisionEvent, failure error)
	// SignalSent reports a terminate or kill attempt.
	SignalSent(event SignalEvent)
	// EscalationCompleted reports the result of a wait-or-terminate call.
	EscalationCompleted(event EscalationEvent)
}

// NoopListener discards all lifecycle events.
type NoopListener struct{}

// SupervisionStarted implements Listener for the no-op listener.
func (NoopListener) SupervisionStarted(SupervisionEvent) {}

// SupervisionFinished implements Listener for the no-op listener.
func (NoopListener) SupervisionFinished(SupervisionEvent) {}

// ObserverFailed implements Listener for the no-op listener.
func (NoopListener) ObserverFailed(SupervisionEvent, error) {}

// SignalSent implements Listener for the no-op listener.
func (NoopListener) SignalSent(SignalEvent) {}

// EscalationCompleted implements Listener for the no-op listener.
func (NoopListener) EscalationCompleted(EscalationEvent) {}

// Resolve returns listener, or a NoopListener when listener is nil.
func Resolve(listener Listener) Listener {
	if listener == nil {
		return NoopListener{}
	}
	return listener
}
