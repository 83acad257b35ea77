package handle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

const (
	outputModePipeStringConstant            = "pipe"
	outputModeMergeStringConstant           = "merge"
	outputModeInheritStringConstant         = "inherit"
	outputModeDiscardStringConstant         = "discard"
	commandNameRequiredMessageConstant      = "command name must be provided"
	mergeRequiresPipedStdoutMessageConstant = "standard error can only be merged into a piped standard output"
	unsupportedOutputModeTemplateConstant   = "unsupported output mode: %s"
	pipeCreationErrorTemplateConstant       = "unable to create %s pipe: %w"
	startErrorTemplateConstant              = "failed to start %q: %v"
	streamNameStdoutConstant                = "stdout"
	streamNameStderrConstant                = "stderr"
	processStateUnavailableMessageConstant  = "process state unavailable after wait"
)

// OutputMode describes how a child output stream is connected.
type OutputMode string

// Supported output modes.
const (
	OutputModePipe    OutputMode = OutputMode(outputModePipeStringConstant)
	OutputModeMerge   OutputMode = OutputMode(outputModeMergeStringConstant)
	OutputModeInherit OutputMode = OutputMode(outputModeInheritStringConstant)
	OutputModeDiscard OutputMode = OutputMode(outputModeDiscardStringConstant)
)

var (
	// ErrCommandNameRequired indicates Start was called without an executable.
	ErrCommandNameRequired = errors.New(commandNameRequiredMessageConstant)
	// ErrMergeRequiresPipedStdout indicates stderr merging was requested without a piped stdout.
	ErrMergeRequiresPipedStdout = errors.New(mergeRequiresPipedStdoutMessageConstant)
	errProcessStateUnavailable  = errors.New(processStateUnavailableMessageConstant)
)

// ParseOutputMode converts textual output modes, accepting an empty value as pipe.
func ParseOutputMode(value string) (OutputMode, error) {
	normalizedValue := strings.ToLower(strings.TrimSpace(value))
	switch normalizedValue {
	case "", outputModePipeStringConstant:
		return OutputModePipe, nil
	case outputModeMergeStringConstant:
		return OutputModeMerge, nil
	case outputModeInheritStringConstant:
		return OutputModeInherit, nil
	case outputModeDiscardStringConstant:
		return OutputModeDiscard, nil
	default:
		return "", fmt.Errorf(unsupportedOutputModeTemplateConstant, value)
	}
}

// Command describes a child process to launch.
type Command struct {
	Name       string
	Arguments  []string
	StdoutMode OutputMode
	StderrMode OutputMode
}

// StartError reports a failure to launch a command.
type StartError struct {
	Name  string
	Cause error
}

// Error describes the launch failure.
func (startError StartError) Error() string {
	return fmt.Sprintf(startErrorTemplateConstant, startError.Name, startError.Cause)
}

// Unwrap exposes the underlying launch failure.
func (startError StartError) Unwrap() error {
	return startError.Cause
}

// Process is an os/exec backed Handle. The exit status is collected by a
// dedicated goroutine so Poll never blocks.
type Process struct {
	command  *exec.Cmd
	stdout   *os.File
	stderr   *os.File
	waitDone chan struct{}

	mutex     sync.Mutex
	exitCode  int
	waitError error
}

// Start launches the command and returns its handle. Standard input is
// connected to the null device.
func Start(executionContext context.Context, command Command) (*Process, error) {
	if len(strings.TrimSpace(command.Name)) == 0 {
		return nil, ErrCommandNameRequired
	}
	if executionContext == nil {
		executionContext = context.Background()
	}

	stdoutMode := normalizeOutputMode(command.StdoutMode)
	stderrMode := normalizeOutputMode(command.StderrMode)
	if stderrMode == OutputModeMerge && stdoutMode != OutputModePipe {
		return nil, ErrMergeRequiresPipedStdout
	}
	if stdoutMode == OutputModeMerge {
		return nil, fmt.Errorf(unsupportedOutputModeTemplateConstant, stdoutMode)
	}

	commandArguments := append([]string{}, command.Arguments...)
	executable := exec.CommandContext(executionContext, command.Name, commandArguments...)

	process := &Process{
		command:  executable,
		waitDone: make(chan struct{}),
	}

	var childWriters []*os.File
	closeChildWriters := func() {
		for _, childWriter := range childWriters {
			_ = childWriter.Close()
		}
	}

	switch stdoutMode {
	case OutputModePipe:
		pipeReader, pipeWriter, pipeError := os.Pipe()
		if pipeError != nil {
			return nil, fmt.Errorf(pipeCreationErrorTemplateConstant, streamNameStdoutConstant, pipeError)
		}
		process.stdout = pipeReader
		executable.Stdout = pipeWriter
		childWriters = append(childWriters, pipeWriter)
	case OutputModeInherit:
		executable.Stdout = os.Stdout
	}

	switch stderrMode {
	case OutputModePipe:
		pipeReader, pipeWriter, pipeError := os.Pipe()
		if pipeError != nil {
			closeChildWriters()
			process.closeReaders()
			return nil, fmt.Errorf(pipeCreationErrorTemplateConstant, streamNameStderrConstant, pipeError)
		}
		process.stderr = pipeReader
		executable.Stderr = pipeWriter
		childWriters = append(childWriters, pipeWriter)
	case OutputModeMerge:
		process.stderr = process.stdout
		executable.Stderr = executable.Stdout
	case OutputModeInherit:
		executable.Stderr = os.Stderr
	}

	startError := executable.Start()
	// The child holds its own copies of the write ends.
	closeChildWriters()
	if startError != nil {
		process.closeReaders()
		return nil, StartError{Name: command.Name, Cause: startError}
	}

	go process.awaitExit()

	return process, nil
}

func normalizeOutputMode(mode OutputMode) OutputMode {
	if len(mode) == 0 {
		return OutputModePipe
	}
	return mode
}

func (process *Process) awaitExit() {
	waitError := process.command.Wait()

	process.mutex.Lock()
	processState := process.command.ProcessState
	if processState != nil {
		process.exitCode = exitCodeFromState(processState)
	} else {
		if waitError == nil {
			waitError = errProcessStateUnavailable
		}
		process.waitError = waitError
	}
	process.mutex.Unlock()

	close(process.waitDone)
}

// Pid returns the operating system process identifier.
func (process *Process) Pid() int {
	return process.command.Process.Pid
}

// Poll reports the exit code without blocking.
func (process *Process) Poll() (int, bool, error) {
	select {
	case <-process.waitDone:
		process.mutex.Lock()
		defer process.mutex.Unlock()
		if process.waitError != nil {
			return 0, false, process.waitError
		}
		return process.exitCode, true, nil
	default:
		return 0, false, nil
	}
}

// Wait blocks until the process exits.
func (process *Process) Wait() (int, error) {
	<-process.waitDone

	process.mutex.Lock()
	defer process.mutex.Unlock()
	return process.exitCode, process.waitError
}

// Done returns a channel closed once the exit status has been collected.
func (process *Process) Done() <-chan struct{} {
	return process.waitDone
}

// Kill forces the process to stop.
func (process *Process) Kill() error {
	return process.command.Process.Kill()
}

func (process *Process) signal(signal os.Signal) error {
	return process.command.Process.Signal(signal)
}

// Stdout returns the piped standard output or nil.
func (process *Process) Stdout() Stream {
	if process.stdout == nil {
		return nil
	}
	return process.stdout
}

// Stderr returns the piped standard error, the stdout stream when merged, or nil.
func (process *Process) Stderr() Stream {
	if process.stderr == nil {
		return nil
	}
	return process.stderr
}

// Close releases the parent's ends of the output pipes. It must only be
// called once nothing reads from the streams anymore.
func (process *Process) Close() error {
	return process.closeReaders()
}

func (process *Process) closeReaders() error {
	var closeErrors []error
	if process.stdout != nil {
		closeErrors = append(closeErrors, process.stdout.Close())
	}
	if process.stderr != nil && process.stderr != process.stdout {
		closeErrors = append(closeErrors, process.stderr.Close())
	}
	return errors.Join(closeErrors...)
}
