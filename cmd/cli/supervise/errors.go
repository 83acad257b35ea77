package supervise

import (
	"fmt"
	"strings"
)

const (
	exitStatusErrorTemplateConstant     = "%s exited with code %d"
	exitStatusUnknownTemplateConstant   = "%s did not report an exit code (%s)"
	commandFailureErrorTemplateConstant = "command %q failed with code %d: %s"
	exitStatusFailureConstant           = 1
	exitStatusMaximumConstant           = 255
)

// ExitStatusError carries the status the procwatch process should exit with
// so its own status mirrors the supervised child.
type ExitStatusError struct {
	Label      string
	ReturnCode int
	Exited     bool
	Action     string
}

// Error describes the child's outcome.
func (exitStatusError ExitStatusError) Error() string {
	if !exitStatusError.Exited {
		return fmt.Sprintf(exitStatusUnknownTemplateConstant, exitStatusError.Label, exitStatusError.Action)
	}
	return fmt.Sprintf(exitStatusErrorTemplateConstant, exitStatusError.Label, exitStatusError.ReturnCode)
}

// ExitCode maps the child's outcome onto a process exit status. Signal
// derived and unknown codes become 1.
func (exitStatusError ExitStatusError) ExitCode() int {
	return clampExitCode(exitStatusError.ReturnCode, exitStatusError.Exited)
}

// CommandFailureError reports a captured command that exited with a non-zero code.
type CommandFailureError struct {
	Command    []string
	ReturnCode int
	Stdout     string
	Stderr     string
}

// Error includes the captured standard error, or standard output when stderr is empty.
func (commandFailureError CommandFailureError) Error() string {
	details := strings.TrimSpace(commandFailureError.Stderr)
	if len(details) == 0 {
		details = strings.TrimSpace(commandFailureError.Stdout)
	}
	return fmt.Sprintf(commandFailureErrorTemplateConstant, strings.Join(commandFailureError.Command, " "), commandFailureError.ReturnCode, details)
}

// ExitCode returns the exit status mirroring the failed command.
func (commandFailureError CommandFailureError) ExitCode() int {
	return clampExitCode(commandFailureError.ReturnCode, true)
}

func clampExitCode(returnCode int, exited bool) int {
	if !exited || returnCode <= 0 || returnCode > exitStatusMaximumConstant {
		return exitStatusFailureConstant
	}
	return returnCode
}
