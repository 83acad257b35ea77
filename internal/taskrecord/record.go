package taskrecord

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	FieldStdoutData  = "stdoutData"
	FieldStderrData  = "stderrData"
	FieldIsFinished  = "isFinished"
	FieldReturnCode  = "returnCode"
	FieldTimeElapsed = "timeElapsed"

	unknownFieldTemplateConstant = "%s is not a field of the task record; possible fields are: %s"
	fieldNamesSeparatorConstant  = ", "

	// DefaultPollInterval is the WaitToFinish polling granularity used when none is supplied.
	DefaultPollInterval = 100 * time.Millisecond
	// WaitIndefinitely makes WaitToFinish block until the record finishes.
	WaitIndefinitely time.Duration = -1
)

var fieldNames = []string{
	FieldStdoutData,
	FieldStderrData,
	FieldIsFinished,
	FieldReturnCode,
	FieldTimeElapsed,
}

// UnknownFieldError reports a generic field lookup with an unsupported name.
type UnknownFieldError struct {
	Name string
}

// Error lists the supported field names alongside the rejected one.
func (unknownFieldError UnknownFieldError) Error() string {
	return fmt.Sprintf(unknownFieldTemplateConstant, unknownFieldError.Name, strings.Join(fieldNames, fieldNamesSeparatorConstant))
}

// Snapshot is a consistent copy of a record's state.
type Snapshot struct {
	StdoutData     string        `json:"stdoutData" yaml:"stdoutData"`
	StderrData     string        `json:"stderrData" yaml:"stderrData"`
	IsFinished     bool          `json:"isFinished" yaml:"isFinished"`
	ReturnCode     *int          `json:"returnCode" yaml:"returnCode"`
	TimeElapsed    time.Duration `json:"-" yaml:"-"`
	ElapsedSeconds float64       `json:"timeElapsed" yaml:"timeElapsed"`
	Codec          string        `json:"codec,omitempty" yaml:"codec,omitempty"`
}

// Record is the shared state of one supervised process. A single observer
// writes it; any number of goroutines may read it. Once finished it never
// changes again.
type Record struct {
	mutex       sync.RWMutex
	stdoutData  []byte
	stderrData  []byte
	isFinished  bool
	returnCode  int
	timeElapsed time.Duration
	codecName   string
	done        chan struct{}
}

// New creates an unfinished record. codecName is empty for raw byte capture.
func New(codecName string) *Record {
	return &Record{
		codecName: codecName,
		done:      make(chan struct{}),
	}
}

// Fields returns the names accepted by Field.
func Fields() []string {
	return append([]string{}, fieldNames...)
}

// Codec returns the codec name fixed at creation, empty for raw bytes.
func (record *Record) Codec() string {
	return record.codecName
}

// StdoutData returns a copy of the accumulated standard output.
func (record *Record) StdoutData() []byte {
	record.mutex.RLock()
	defer record.mutex.RUnlock()
	return append([]byte{}, record.stdoutData...)
}

// StderrData returns a copy of the accumulated standard error.
func (record *Record) StderrData() []byte {
	record.mutex.RLock()
	defer record.mutex.RUnlock()
	return append([]byte{}, record.stderrData...)
}

// IsFinished reports whether the process exited and its output was folded in.
func (record *Record) IsFinished() bool {
	record.mutex.RLock()
	defer record.mutex.RUnlock()
	return record.isFinished
}

// ReturnCode returns the exit code once the record is finished.
func (record *Record) ReturnCode() (int, bool) {
	record.mutex.RLock()
	defer record.mutex.RUnlock()
	return record.returnCode, record.isFinished
}

// TimeElapsed returns the time observed so far.
func (record *Record) TimeElapsed() time.Duration {
	record.mutex.RLock()
	defer record.mutex.RUnlock()
	return record.timeElapsed
}

// Done returns a channel closed when the record finishes.
func (record *Record) Done() <-chan struct{} {
	return record.done
}

// Field returns the value of a named field. Byte fields are returned as
// copies; returnCode is nil until the record finishes.
func (record *Record) Field(name string) (any, error) {
	record.mutex.RLock()
	defer record.mutex.RUnlock()

	switch name {
	case FieldStdoutData:
		return append([]byte{}, record.stdoutData...), nil
	case FieldStderrData:
		return append([]byte{}, record.stderrData...), nil
	case FieldIsFinished:
		return record.isFinished, nil
	case FieldReturnCode:
		if !record.isFinished {
			return nil, nil
		}
		return record.returnCode, nil
	case FieldTimeElapsed:
		return record.timeElapsed, nil
	default:
		return nil, UnknownFieldError{Name: name}
	}
}

// Snapshot copies every field under a single lock.
func (record *Record) Snapshot() Snapshot {
	record.mutex.RLock()
	defer record.mutex.RUnlock()

	snapshot := Snapshot{
		StdoutData:     string(record.stdoutData),
		StderrData:     string(record.stderrData),
		IsFinished:     record.isFinished,
		TimeElapsed:    record.timeElapsed,
		ElapsedSeconds: record.timeElapsed.Seconds(),
		Codec:          record.codecName,
	}
	if record.isFinished {
		returnCode := record.returnCode
		snapshot.ReturnCode = &returnCode
	}
	return snapshot
}

// String renders the snapshot like a field map.
func (record *Record) String() string {
	snapshot := record.Snapshot()
	returnCode := "<nil>"
	if snapshot.ReturnCode != nil {
		returnCode = fmt.Sprintf("%d", *snapshot.ReturnCode)
	}
	return fmt.Sprintf(
		"{%s: %q, %s: %q, %s: %t, %s: %s, %s: %s}",
		FieldStdoutData, snapshot.StdoutData,
		FieldStderrData, snapshot.StderrData,
		FieldIsFinished, snapshot.IsFinished,
		FieldReturnCode, returnCode,
		FieldTimeElapsed, snapshot.TimeElapsed,
	)
}

// WaitToFinish blocks until the record finishes or timeout elapses, sleeping
// pollInterval between checks. A negative timeout waits indefinitely. It
// returns the exit code and true when finished, false on timeout.
func (record *Record) WaitToFinish(timeout time.Duration, pollInterval time.Duration) (int, bool) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	if timeout < 0 {
		for !record.IsFinished() {
			time.Sleep(pollInterval)
		}
		return record.ReturnCode()
	}

	remaining := timeout
	for !record.IsFinished() && remaining > 0 {
		sleepDuration := min(pollInterval, remaining)
		time.Sleep(sleepDuration)
		remaining -= sleepDuration
	}
	return record.ReturnCode()
}

// AppendStdout adds decoded or raw output to stdoutData. Observer use only.
func (record *Record) AppendStdout(data []byte) {
	if len(data) == 0 {
		return
	}
	record.mutex.Lock()
	defer record.mutex.Unlock()
	if record.isFinished {
		return
	}
	record.stdoutData = append(record.stdoutData, data...)
}

// AppendStderr adds decoded or raw output to stderrData. Observer use only.
func (record *Record) AppendStderr(data []byte) {
	if len(data) == 0 {
		return
	}
	record.mutex.Lock()
	defer record.mutex.Unlock()
	if record.isFinished {
		return
	}
	record.stderrData = append(record.stderrData, data...)
}

// SetElapsed updates timeElapsed while running. Observer use only.
func (record *Record) SetElapsed(elapsed time.Duration) {
	record.mutex.Lock()
	defer record.mutex.Unlock()
	if record.isFinished || elapsed < record.timeElapsed {
		return
	}
	record.timeElapsed = elapsed
}

// Finish stores the exit code and marks the record finished. Only the first
// call has an effect. Observer use only.
func (record *Record) Finish(returnCode int, elapsed time.Duration) {
	record.mutex.Lock()
	defer record.mutex.Unlock()
	if record.isFinished {
		return
	}
	if elapsed > record.timeElapsed {
		record.timeElapsed = elapsed
	}
	record.returnCode = returnCode
	record.isFinished = true
	close(record.done)
}
