package testsupport

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/temirov/procwatch/internal/handle"
)

const (
	// HelperModeEnvironmentVariable selects a helper behaviour when a test
	// binary re-executes itself.
	HelperModeEnvironmentVariable = "PROCWATCH_TEST_HELPER"

	// HelperModeSleeper sleeps, then exits. Arguments: seconds, exit code and
	// terminate handling (TerminateDefault, TerminateIgnore or TerminateExitPrefix followed by a code).
	HelperModeSleeper = "sleeper"
	// HelperModeSlowPrinter writes the staged stdout and stderr sequence
	// described by SlowPrinterExitCode and exits with that code.
	HelperModeSlowPrinter = "slow-printer"
	// HelperModeWriter writes hex encoded stdout and stderr payloads, lingers
	// briefly and exits. Arguments: stdout hex, stderr hex, exit code.
	HelperModeWriter = "writer"

	// TerminateDefault leaves terminate handling to the runtime.
	TerminateDefault = "default"
	// TerminateIgnore drops terminate requests.
	TerminateIgnore = "ignore"
	// TerminateExitPrefix makes the helper exit with the following code on terminate.
	TerminateExitPrefix = "exit="

	// SlowPrinterExitCode is the exit status of HelperModeSlowPrinter.
	SlowPrinterExitCode = 4

	helperUsageTemplateConstant         = "helper %s: %v\n"
	helperUnknownModeTemplateConstant   = "unknown helper mode %q"
	helperArgumentCountTemplateConstant = "expected %d arguments, received %d"
	helperFailureExitCodeConstant       = 127
	sleeperArgumentCountConstant        = 3
	writerArgumentCountConstant         = 3
	writerLingerConstant                = 200 * time.Millisecond
)

type slowPrinterStep struct {
	delay  time.Duration
	stdout string
	stderr string
}

var slowPrinterSteps = []slowPrinterStep{
	{delay: 2 * time.Second, stdout: "Hello World\n"},
	{delay: 3 * time.Second, stderr: "Goodbye ", stdout: "Cheese\n"},
	{delay: 3 * time.Second, stderr: "Cruel World"},
	{delay: 2 * time.Second, stderr: "\n"},
}

// RunHelperIfRequested turns the current process into a helper child when
// HelperModeEnvironmentVariable is set. Call it first in TestMain; it does
// not return in helper mode.
func RunHelperIfRequested() {
	helperMode := os.Getenv(HelperModeEnvironmentVariable)
	if len(helperMode) == 0 {
		return
	}
	helperArguments := os.Args[1:]

	var helperError error
	exitCode := 0
	switch helperMode {
	case HelperModeSleeper:
		exitCode, helperError = runSleeper(helperArguments)
	case HelperModeSlowPrinter:
		exitCode = runSlowPrinter()
	case HelperModeWriter:
		exitCode, helperError = runWriter(helperArguments)
	default:
		helperError = fmt.Errorf(helperUnknownModeTemplateConstant, helperMode)
	}
	if helperError != nil {
		fmt.Fprintf(os.Stderr, helperUsageTemplateConstant, helperMode, helperError)
		os.Exit(helperFailureExitCodeConstant)
	}
	os.Exit(exitCode)
}

// HelperCommand describes a re-execution of the test binary in helperMode.
// The mode is passed through the environment, which the child inherits.
func HelperCommand(testInstance testing.TB, helperMode string, arguments ...string) handle.Command {
	testInstance.Helper()
	testInstance.Setenv(HelperModeEnvironmentVariable, helperMode)
	return handle.Command{Name: os.Args[0], Arguments: arguments}
}

// SleeperArguments builds HelperModeSleeper arguments.
func SleeperArguments(duration time.Duration, exitCode int, terminateHandling string) []string {
	return []string{
		strconv.FormatInt(duration.Milliseconds(), 10),
		strconv.Itoa(exitCode),
		terminateHandling,
	}
}

// TerminateExit returns the terminate handling that exits with exitCode.
func TerminateExit(exitCode int) string {
	return TerminateExitPrefix + strconv.Itoa(exitCode)
}

// WriterArguments builds HelperModeWriter arguments.
func WriterArguments(stdout []byte, stderr []byte, exitCode int) []string {
	return []string{hex.EncodeToString(stdout), hex.EncodeToString(stderr), strconv.Itoa(exitCode)}
}

func runSleeper(arguments []string) (int, error) {
	if len(arguments) != sleeperArgumentCountConstant {
		return 0, fmt.Errorf(helperArgumentCountTemplateConstant, sleeperArgumentCountConstant, len(arguments))
	}
	milliseconds, parseError := strconv.Atoi(arguments[0])
	if parseError != nil {
		return 0, parseError
	}
	exitCode, parseError := strconv.Atoi(arguments[1])
	if parseError != nil {
		return 0, parseError
	}

	terminateHandling := arguments[2]
	switch {
	case terminateHandling == TerminateIgnore:
		signal.Ignore(syscall.SIGTERM)
	case strings.HasPrefix(terminateHandling, TerminateExitPrefix):
		terminateExitCode, codeError := strconv.Atoi(strings.TrimPrefix(terminateHandling, TerminateExitPrefix))
		if codeError != nil {
			return 0, codeError
		}
		terminations := make(chan os.Signal, 1)
		signal.Notify(terminations, syscall.SIGTERM)
		go func() {
			<-terminations
			os.Exit(terminateExitCode)
		}()
	}

	time.Sleep(time.Duration(milliseconds) * time.Millisecond)
	return exitCode, nil
}

func runSlowPrinter() int {
	for _, step := range slowPrinterSteps {
		time.Sleep(step.delay)
		if len(step.stderr) > 0 {
			_, _ = os.Stderr.WriteString(step.stderr)
		}
		if len(step.stdout) > 0 {
			_, _ = os.Stdout.WriteString(step.stdout)
		}
	}
	return SlowPrinterExitCode
}

func runWriter(arguments []string) (int, error) {
	if len(arguments) != writerArgumentCountConstant {
		return 0, fmt.Errorf(helperArgumentCountTemplateConstant, writerArgumentCountConstant, len(arguments))
	}
	stdout, decodeError := hex.DecodeString(arguments[0])
	if decodeError != nil {
		return 0, decodeError
	}
	stderr, decodeError := hex.DecodeString(arguments[1])
	if decodeError != nil {
		return 0, decodeError
	}
	exitCode, parseError := strconv.Atoi(arguments[2])
	if parseError != nil {
		return 0, parseError
	}
	_, _ = os.Stdout.Write(stdout)
	_, _ = os.Stderr.Write(stderr)
	// Stay alive long enough for a background observer to drain the pipes.
	time.Sleep(writerLingerConstant)
	return exitCode, nil
}
