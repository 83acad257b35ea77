package observer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/procwatch/internal/codec"
	"github.com/temirov/procwatch/internal/handle"
	"github.com/temirov/procwatch/internal/lifecycle"
	"github.com/temirov/procwatch/internal/taskrecord"
)

const (
	// ChunkSize is the largest number of bytes read from a stream per cycle.
	ChunkSize = 4096
	// DefaultPollInterval is used when no poll interval is configured.
	DefaultPollInterval = 100 * time.Millisecond

	readinessFractionConstant        = 100
	minimumReadinessTimeoutConstant  = time.Millisecond
	handleRequiredMessageConstant    = "process handle must be provided"
	recordRequiredMessageConstant    = "task record must be provided"
	fatalErrorTemplateConstant       = "observer %s failed: %v"
	operationPollConstant            = "poll"
	operationReadinessConstant       = "readiness check"
	operationReadTemplateConstant    = "read %s"
	operationDecodeTemplateConstant  = "decode %s"
	streamLabelStdoutConstant        = "stdout"
	streamLabelStderrConstant        = "stderr"
	streamExhaustedMessageConstant   = "output stream reached end of file"
	streamDrainingMessageConstant    = "draining output stream after exit"
	observerFinishedMessageConstant  = "observed process exited"
	logFieldStreamConstant           = "stream"
	logFieldReturnCodeConstant       = "return_code"
	logFieldElapsedConstant          = "elapsed"
	logFieldPollIntervalConstant     = "poll_interval"
	logFieldReadinessTimeoutConstant = "readiness_timeout"
	observerStartingMessageConstant  = "observer starting"
	logFieldStreamCountConstant      = "stream_count"
)

var (
	// ErrHandleRequired indicates New was called without a process handle.
	ErrHandleRequired = errors.New(handleRequiredMessageConstant)
	// ErrRecordRequired indicates New was called without a task record.
	ErrRecordRequired = errors.New(recordRequiredMessageConstant)
)

// FatalError reports a failure that ended an observer before the process
// was seen exiting. The record stays unfinished.
type FatalError struct {
	Operation string
	Cause     error
}

// Error describes the failed operation.
func (fatalError FatalError) Error() string {
	return fmt.Sprintf(fatalErrorTemplateConstant, fatalError.Operation, fatalError.Cause)
}

// Unwrap exposes the underlying failure.
func (fatalError FatalError) Unwrap() error {
	return fatalError.Cause
}

// FailureHandler receives the error that ended a background observer. When
// no handler is configured the observer goroutine panics with the error.
type FailureHandler func(failure FatalError)

// Configuration tunes an Observer.
type Configuration struct {
	PollInterval   time.Duration
	Label          string
	Logger         *zap.Logger
	Listener       lifecycle.Listener
	FailureHandler FailureHandler
	// DrainOnExit reads every open stream to end of file after the exit is
	// seen and before the record finishes. A descendant that inherited a
	// stream delays finishing until it closes its copy.
	DrainOnExit bool
}

type streamTarget int

const (
	streamTargetStdout streamTarget = iota
	streamTargetStderr
)

type observedStream struct {
	stream  handle.Stream
	target  streamTarget
	decoder *codec.StreamDecoder
}

// Observer populates one task record for the lifetime of one process.
type Observer struct {
	processHandle    handle.Handle
	record           *taskrecord.Record
	pollInterval     time.Duration
	readinessTimeout time.Duration
	label            string
	logger           *zap.Logger
	listener         lifecycle.Listener
	failureHandler   FailureHandler
	drainOnExit      bool
	streams          []*observedStream
	readBuffer       []byte
}

// New prepares an observer for processHandle writing into record. The
// record's codec is resolved here, so an unusable codec is reported before
// anything runs.
func New(processHandle handle.Handle, record *taskrecord.Record, configuration Configuration) (*Observer, error) {
	if processHandle == nil {
		return nil, ErrHandleRequired
	}
	if record == nil {
		return nil, ErrRecordRequired
	}

	var recordCodec *codec.Codec
	if len(record.Codec()) > 0 {
		resolvedCodec, lookupError := codec.Lookup(record.Codec())
		if lookupError != nil {
			return nil, lookupError
		}
		recordCodec = resolvedCodec
	}

	pollInterval := configuration.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	observer := &Observer{
		processHandle:    processHandle,
		record:           record,
		pollInterval:     pollInterval,
		readinessTimeout: ReadinessTimeout(pollInterval),
		label:            configuration.Label,
		logger:           logger,
		listener:         lifecycle.Resolve(configuration.Listener),
		failureHandler:   configuration.FailureHandler,
		drainOnExit:      configuration.DrainOnExit,
		readBuffer:       make([]byte, ChunkSize),
	}
	observer.streams = collectStreams(processHandle, recordCodec)

	return observer, nil
}

// ReadinessTimeout returns how long a cycle waits for output: one hundredth
// of the poll interval, but at least a millisecond.
func ReadinessTimeout(pollInterval time.Duration) time.Duration {
	return max(pollInterval/readinessFractionConstant, minimumReadinessTimeoutConstant)
}

// collectStreams maps connected streams to record fields. A stderr sharing
// stdout's descriptor is not tracked separately.
func collectStreams(processHandle handle.Handle, recordCodec *codec.Codec) []*observedStream {
	var streams []*observedStream
	stdout := processHandle.Stdout()
	if stdout != nil {
		streams = append(streams, newObservedStream(stdout, streamTargetStdout, recordCodec))
	}
	stderr := processHandle.Stderr()
	if stderr != nil && (stdout == nil || stderr.Fd() != stdout.Fd()) {
		streams = append(streams, newObservedStream(stderr, streamTargetStderr, recordCodec))
	}
	return streams
}

func newObservedStream(stream handle.Stream, target streamTarget, recordCodec *codec.Codec) *observedStream {
	observed := &observedStream{stream: stream, target: target}
	if recordCodec != nil {
		observed.decoder = recordCodec.NewStreamDecoder()
	}
	return observed
}

// Start runs the observer on its own goroutine and returns immediately.
// The goroutine ends when the process exits; it never keeps the program
// alive.
func (observer *Observer) Start() {
	observer.listener.SupervisionStarted(observer.event())
	go func() {
		runError := observer.Run()
		if runError == nil {
			return
		}
		var fatalError FatalError
		if !errors.As(runError, &fatalError) {
			fatalError = FatalError{Operation: operationPollConstant, Cause: runError}
		}
		observer.fail(fatalError)
	}()
}

func (observer *Observer) fail(fatalError FatalError) {
	observer.listener.ObserverFailed(observer.event(), fatalError)
	if observer.failureHandler != nil {
		observer.failureHandler(fatalError)
		return
	}
	panic(fatalError)
}

// Run observes the process on the calling goroutine until it exits.
func (observer *Observer) Run() error {
	startTime := time.Now()
	observer.logger.Debug(
		observerStartingMessageConstant,
		zap.Duration(logFieldPollIntervalConstant, observer.pollInterval),
		zap.Duration(logFieldReadinessTimeoutConstant, observer.readinessTimeout),
		zap.Int(logFieldStreamCountConstant, len(observer.streams)),
	)

	returnCode, exited, pollError := observer.processHandle.Poll()
	if pollError != nil {
		return FatalError{Operation: operationPollConstant, Cause: pollError}
	}

	for !exited {
		time.Sleep(observer.pollInterval)
		observer.record.SetElapsed(time.Since(startTime))

		if len(observer.streams) > 0 {
			if drainError := observer.drainReadyStreams(); drainError != nil {
				return drainError
			}
		}

		returnCode, exited, pollError = observer.processHandle.Poll()
		if pollError != nil {
			return FatalError{Operation: operationPollConstant, Cause: pollError}
		}
	}

	if observer.drainOnExit {
		if drainError := observer.drainToEnd(); drainError != nil {
			return drainError
		}
	}

	if flushError := observer.flushDecoders(); flushError != nil {
		return flushError
	}

	elapsed := time.Since(startTime)
	observer.record.Finish(returnCode, elapsed)
	observer.logger.Debug(
		observerFinishedMessageConstant,
		zap.Int(logFieldReturnCodeConstant, returnCode),
		zap.Duration(logFieldElapsedConstant, elapsed),
	)
	observer.listener.SupervisionFinished(observer.event())

	return nil
}

func (observer *Observer) drainReadyStreams() error {
	pollableStreams := make([]handle.Stream, len(observer.streams))
	for streamIndex, observed := range observer.streams {
		pollableStreams[streamIndex] = observed.stream
	}

	readyIndexes, readinessError := readyStreams(pollableStreams, observer.readinessTimeout)
	if readinessError != nil {
		return FatalError{Operation: operationReadinessConstant, Cause: readinessError}
	}
	if len(readyIndexes) == 0 {
		return nil
	}

	exhausted := make(map[int]struct{})
	for _, streamIndex := range readyIndexes {
		observed := observer.streams[streamIndex]
		reachedEnd, readError := observer.readChunk(observed)
		if readError != nil {
			return readError
		}
		if reachedEnd {
			exhausted[streamIndex] = struct{}{}
		}
	}

	if len(exhausted) > 0 {
		remaining := make([]*observedStream, 0, len(observer.streams)-len(exhausted))
		for streamIndex, observed := range observer.streams {
			if _, isExhausted := exhausted[streamIndex]; isExhausted {
				observer.logger.Debug(streamExhaustedMessageConstant, zap.String(logFieldStreamConstant, observed.target.String()))
				if flushError := observer.flushDecoder(observed); flushError != nil {
					return flushError
				}
				continue
			}
			remaining = append(remaining, observed)
		}
		observer.streams = remaining
	}

	return nil
}

// drainToEnd reads the remaining streams until end of file. The process has
// exited, so the reads block only while a descendant holds a stream open.
func (observer *Observer) drainToEnd() error {
	for _, observed := range observer.streams {
		observer.logger.Debug(streamDrainingMessageConstant, zap.String(logFieldStreamConstant, observed.target.String()))
		for {
			reachedEnd, readError := observer.readChunk(observed)
			if readError != nil {
				return readError
			}
			if reachedEnd {
				break
			}
		}
		if flushError := observer.flushDecoder(observed); flushError != nil {
			return flushError
		}
	}
	observer.streams = nil
	return nil
}

// readChunk performs one read of at most ChunkSize bytes. The stream was
// reported readable, so the read returns whatever is available.
func (observer *Observer) readChunk(observed *observedStream) (bool, error) {
	bytesRead, readError := observed.stream.Read(observer.readBuffer)
	if bytesRead > 0 {
		if appendError := observer.appendOutput(observed, observer.readBuffer[:bytesRead]); appendError != nil {
			return false, appendError
		}
	}

	switch {
	case readError == nil:
		return bytesRead == 0, nil
	case errors.Is(readError, io.EOF):
		return true, nil
	default:
		return false, FatalError{Operation: fmt.Sprintf(operationReadTemplateConstant, observed.target), Cause: readError}
	}
}

func (observer *Observer) appendOutput(observed *observedStream, chunk []byte) error {
	data := chunk
	if observed.decoder != nil {
		decoded, decodeError := observed.decoder.Decode(chunk)
		if decodeError != nil {
			return FatalError{Operation: fmt.Sprintf(operationDecodeTemplateConstant, observed.target), Cause: decodeError}
		}
		data = decoded
	}

	switch observed.target {
	case streamTargetStdout:
		observer.record.AppendStdout(data)
	case streamTargetStderr:
		observer.record.AppendStderr(data)
	}
	return nil
}

// flushDecoders folds in bytes of an incomplete character that were already
// read. It performs no reads.
func (observer *Observer) flushDecoders() error {
	for _, observed := range observer.streams {
		if flushError := observer.flushDecoder(observed); flushError != nil {
			return flushError
		}
	}
	return nil
}

func (observer *Observer) flushDecoder(observed *observedStream) error {
	if observed.decoder == nil {
		return nil
	}
	flushed, flushError := observed.decoder.Flush()
	if flushError != nil {
		return FatalError{Operation: fmt.Sprintf(operationDecodeTemplateConstant, observed.target), Cause: flushError}
	}
	switch observed.target {
	case streamTargetStdout:
		observer.record.AppendStdout(flushed)
	case streamTargetStderr:
		observer.record.AppendStderr(flushed)
	}
	return nil
}

func (observer *Observer) event() lifecycle.SupervisionEvent {
	return lifecycle.SupervisionEvent{Label: observer.label, Snapshot: observer.record.Snapshot()}
}

func (target streamTarget) String() string {
	if target == streamTargetStderr {
		return streamLabelStderrConstant
	}
	return streamLabelStdoutConstant
}
