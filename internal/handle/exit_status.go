package handle

import (
	"os"
	"syscall"
)

// exitCodeFromState converts a process state into an exit code. Processes
// terminated by a signal report the negated signal number.
func exitCodeFromState(processState *os.ProcessState) int {
	if waitStatus, isWaitStatus := processState.Sys().(syscall.WaitStatus); isWaitStatus && waitStatus.Signaled() {
		return -int(waitStatus.Signal())
	}
	return processState.ExitCode()
}
