package testsupport

import (
	"os"
	"sync"
	"time"

	"github.com/temirov/procwatch/internal/handle"
)

// KilledExitCode is the status ScriptedHandle reports after a kill.
const KilledExitCode = -9

// ScriptedHandle is an in-memory handle.Handle whose exit is driven by a
// clock and by the signals it receives.
type ScriptedHandle struct {
	mutex sync.Mutex

	// ExitAfter makes the process exit on its own once this much time has
	// passed since creation. Zero means it never exits on its own.
	ExitAfter time.Duration
	ExitCode  int
	// TerminateExitCode, when set, makes terminate end the process with that code.
	TerminateExitCode *int
	// KillFindsExited makes kill report that the process was already gone.
	KillFindsExited bool
	PollError       error
	StdoutStream    handle.Stream
	StderrStream    handle.Stream

	createdAt      time.Time
	exited         bool
	finalExitCode  int
	terminateCount int
	killCount      int
	pollCount      int
}

// NewScriptedHandle returns a running handle that exits with exitCode after exitAfter.
func NewScriptedHandle(exitAfter time.Duration, exitCode int) *ScriptedHandle {
	return &ScriptedHandle{ExitAfter: exitAfter, ExitCode: exitCode, createdAt: time.Now()}
}

// Poll implements handle.Handle.
func (scriptedHandle *ScriptedHandle) Poll() (int, bool, error) {
	scriptedHandle.mutex.Lock()
	defer scriptedHandle.mutex.Unlock()
	scriptedHandle.pollCount++
	if scriptedHandle.PollError != nil {
		return 0, false, scriptedHandle.PollError
	}
	scriptedHandle.advance()
	return scriptedHandle.finalExitCode, scriptedHandle.exited, nil
}

// Wait implements handle.Handle by polling.
func (scriptedHandle *ScriptedHandle) Wait() (int, error) {
	for {
		exitCode, exited, pollError := scriptedHandle.Poll()
		if pollError != nil || exited {
			return exitCode, pollError
		}
		time.Sleep(time.Millisecond)
	}
}

// Terminate implements handle.Handle.
func (scriptedHandle *ScriptedHandle) Terminate() error {
	scriptedHandle.mutex.Lock()
	defer scriptedHandle.mutex.Unlock()
	scriptedHandle.terminateCount++
	scriptedHandle.advance()
	if scriptedHandle.exited {
		return os.ErrProcessDone
	}
	if scriptedHandle.TerminateExitCode != nil {
		scriptedHandle.exit(*scriptedHandle.TerminateExitCode)
	}
	return nil
}

// Kill implements handle.Handle.
func (scriptedHandle *ScriptedHandle) Kill() error {
	scriptedHandle.mutex.Lock()
	defer scriptedHandle.mutex.Unlock()
	scriptedHandle.killCount++
	scriptedHandle.advance()
	if scriptedHandle.exited {
		return os.ErrProcessDone
	}
	if scriptedHandle.KillFindsExited {
		scriptedHandle.exit(scriptedHandle.ExitCode)
		return os.ErrProcessDone
	}
	scriptedHandle.exit(KilledExitCode)
	return nil
}

// Stdout implements handle.Handle.
func (scriptedHandle *ScriptedHandle) Stdout() handle.Stream {
	return scriptedHandle.StdoutStream
}

// Stderr implements handle.Handle.
func (scriptedHandle *ScriptedHandle) Stderr() handle.Stream {
	return scriptedHandle.StderrStream
}

// TerminateCount returns how many times Terminate was called.
func (scriptedHandle *ScriptedHandle) TerminateCount() int {
	scriptedHandle.mutex.Lock()
	defer scriptedHandle.mutex.Unlock()
	return scriptedHandle.terminateCount
}

// KillCount returns how many times Kill was called.
func (scriptedHandle *ScriptedHandle) KillCount() int {
	scriptedHandle.mutex.Lock()
	defer scriptedHandle.mutex.Unlock()
	return scriptedHandle.killCount
}

// PollCount returns how many times Poll was called.
func (scriptedHandle *ScriptedHandle) PollCount() int {
	scriptedHandle.mutex.Lock()
	defer scriptedHandle.mutex.Unlock()
	return scriptedHandle.pollCount
}

func (scriptedHandle *ScriptedHandle) advance() {
	if scriptedHandle.exited || scriptedHandle.ExitAfter <= 0 {
		return
	}
	if time.Since(scriptedHandle.createdAt) >= scriptedHandle.ExitAfter {
		scriptedHandle.exit(scriptedHandle.ExitCode)
	}
}

func (scriptedHandle *ScriptedHandle) exit(exitCode int) {
	scriptedHandle.exited = true
	scriptedHandle.finalExitCode = exitCode
}
