package testsupport

import (
	"sync"

	"github.com/temirov/procwatch/internal/lifecycle"
)

// RecordingListener captures lifecycle events for assertions.
type RecordingListener struct {
	mutex            sync.Mutex
	startedEvents    []lifecycle.SupervisionEvent
	finishedEvents   []lifecycle.SupervisionEvent
	failures         []error
	signalEvents     []lifecycle.SignalEvent
	escalationEvents []lifecycle.EscalationEvent
}

// SupervisionStarted records the event.
func (listener *RecordingListener) SupervisionStarted(event lifecycle.SupervisionEvent) {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	listener.startedEvents = append(listener.startedEvents, event)
}

// SupervisionFinished records the event.
func (listener *RecordingListener) SupervisionFinished(event lifecycle.SupervisionEvent) {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	listener.finishedEvents = append(listener.finishedEvents, event)
}

// ObserverFailed records the failure.
func (listener *RecordingListener) ObserverFailed(_ lifecycle.SupervisionEvent, failure error) {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	listener.failures = append(listener.failures, failure)
}

// SignalSent records the event.
func (listener *RecordingListener) SignalSent(event lifecycle.SignalEvent) {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	listener.signalEvents = append(listener.signalEvents, event)
}

// EscalationCompleted records the event.
func (listener *RecordingListener) EscalationCompleted(event lifecycle.EscalationEvent) {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	listener.escalationEvents = append(listener.escalationEvents, event)
}

// StartedEvents returns the recorded SupervisionStarted events.
func (listener *RecordingListener) StartedEvents() []lifecycle.SupervisionEvent {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	return append([]lifecycle.SupervisionEvent{}, listener.startedEvents...)
}

// FinishedEvents returns the recorded SupervisionFinished events.
func (listener *RecordingListener) FinishedEvents() []lifecycle.SupervisionEvent {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	return append([]lifecycle.SupervisionEvent{}, listener.finishedEvents...)
}

// Failures returns the recorded observer failures.
func (listener *RecordingListener) Failures() []error {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	return append([]error{}, listener.failures...)
}

// SignalEvents returns the recorded signal events.
func (listener *RecordingListener) SignalEvents() []lifecycle.SignalEvent {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	return append([]lifecycle.SignalEvent{}, listener.signalEvents...)
}

// EscalationEvents returns the recorded escalation events.
func (listener *RecordingListener) EscalationEvents() []lifecycle.EscalationEvent {
	listener.mutex.Lock()
	defer listener.mutex.Unlock()
	return append([]lifecycle.EscalationEvent{}, listener.escalationEvents...)
}
