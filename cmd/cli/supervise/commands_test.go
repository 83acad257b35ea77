package supervise_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/temirov/procwatch/cmd/cli/supervise"
	"github.com/temirov/procwatch/internal/codec"
	"github.com/temirov/procwatch/internal/taskrecord"
	"github.com/temirov/procwatch/internal/testsupport"
)

const (
	testStdoutPayloadConstant    = "captured stdout\n"
	testStderrPayloadConstant    = "captured stderr\n"
	testWriterExitCodeConstant   = 3
	testReportIntervalConstant   = "50ms"
	testPollIntervalFlagConstant = "20ms"
	testLargeStdoutSizeConstant  = 40000
	testLargeStderrSizeConstant  = 20000
)

type commandBuilder interface {
	Build() (*cobra.Command, error)
}

func executeCommand(testInstance *testing.T, builder commandBuilder, arguments ...string) (string, error) {
	testInstance.Helper()
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)
	command.SetErr(io.Discard)
	command.SetArgs(arguments)
	command.SetContext(context.Background())
	command.SilenceUsage = true
	command.SilenceErrors = true

	executionError := command.Execute()
	return outputBuffer.String(), executionError
}

func helperArguments(testInstance *testing.T, helperMode string, arguments ...string) []string {
	testInstance.Helper()
	helperCommand := testsupport.HelperCommand(testInstance, helperMode, arguments...)
	return append([]string{helperCommand.Name}, helperCommand.Arguments...)
}

func staticConfiguration(configuration supervise.CommandConfiguration) supervise.ConfigurationProvider {
	return func() supervise.CommandConfiguration {
		return configuration
	}
}

func TestCommandsRequireArguments(testInstance *testing.T) {
	builders := map[string]commandBuilder{
		"run":     &supervise.RunCommandBuilder{},
		"watch":   &supervise.WatchCommandBuilder{},
		"capture": &supervise.CaptureCommandBuilder{},
	}

	for builderName, builder := range builders {
		testInstance.Run(builderName, func(testInstance *testing.T) {
			_, executionError := executeCommand(testInstance, builder)
			require.Error(testInstance, executionError)
			require.Contains(testInstance, executionError.Error(), "a command to supervise is required")
		})
	}
}

func TestCaptureCommandReportsOutput(testInstance *testing.T) {
	testCases := []struct {
		name           string
		failOnError    bool
		mergeStderr    bool
		expectedStdout string
		expectedStderr string
		expectFailure  bool
	}{
		{
			name:           "separate_streams",
			expectedStdout: testStdoutPayloadConstant,
			expectedStderr: testStderrPayloadConstant,
		},
		{
			name:           "merged_streams",
			mergeStderr:    true,
			expectedStdout: testStdoutPayloadConstant + testStderrPayloadConstant,
		},
		{
			name:           "fail_on_error",
			failOnError:    true,
			expectedStdout: testStdoutPayloadConstant,
			expectedStderr: testStderrPayloadConstant,
			expectFailure:  true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			commandArguments := []string{"--poll-interval", testPollIntervalFlagConstant}
			if testCase.mergeStderr {
				commandArguments = append(commandArguments, "--merge-stderr")
			}
			if testCase.failOnError {
				commandArguments = append(commandArguments, "--fail-on-error")
			}
			commandArguments = append(commandArguments, "--")
			commandArguments = append(commandArguments, helperArguments(testInstance, testsupport.HelperModeWriter,
				testsupport.WriterArguments([]byte(testStdoutPayloadConstant), []byte(testStderrPayloadConstant), testWriterExitCodeConstant)...)...)

			output, executionError := executeCommand(testInstance, &supervise.CaptureCommandBuilder{}, commandArguments...)

			if testCase.expectFailure {
				var failure supervise.CommandFailureError
				require.ErrorAs(testInstance, executionError, &failure)
				require.Equal(testInstance, testWriterExitCodeConstant, failure.ExitCode())
				require.Equal(testInstance, testStderrPayloadConstant, failure.Stderr)
			} else {
				require.NoError(testInstance, executionError)
			}

			var report supervise.CaptureReport
			require.NoError(testInstance, json.Unmarshal([]byte(output), &report))
			require.Equal(testInstance, testWriterExitCodeConstant, report.ReturnCode)
			require.Equal(testInstance, testCase.expectedStdout, report.Stdout)
			require.Equal(testInstance, testCase.expectedStderr, report.Stderr)
			require.Greater(testInstance, report.ElapsedSeconds, 0.0)
		})
	}
}

func TestCaptureCommandCollectsCompleteOutput(testInstance *testing.T) {
	stdoutPayload := bytes.Repeat([]byte("o"), testLargeStdoutSizeConstant)
	stderrPayload := bytes.Repeat([]byte("e"), testLargeStderrSizeConstant)

	commandArguments := append([]string{"--"}, helperArguments(testInstance, testsupport.HelperModeWriter,
		testsupport.WriterArguments(stdoutPayload, stderrPayload, 0)...)...)

	output, executionError := executeCommand(testInstance, &supervise.CaptureCommandBuilder{}, commandArguments...)
	require.NoError(testInstance, executionError)

	var report supervise.CaptureReport
	require.NoError(testInstance, json.Unmarshal([]byte(output), &report))
	require.Zero(testInstance, report.ReturnCode)
	require.Len(testInstance, report.Stdout, testLargeStdoutSizeConstant)
	require.Len(testInstance, report.Stderr, testLargeStderrSizeConstant)
	require.Equal(testInstance, string(stdoutPayload), report.Stdout)
	require.Equal(testInstance, string(stderrPayload), report.Stderr)
}

func TestCaptureCommandDecodesConfiguredCodec(testInstance *testing.T) {
	latin1, lookupError := codec.Lookup("latin1")
	require.NoError(testInstance, lookupError)
	encodedPayload, encodeError := latin1.Encode([]byte("naïve café\n"))
	require.NoError(testInstance, encodeError)

	configuration := supervise.DefaultCommandConfiguration()
	configuration.Codec = "latin1"
	configuration.OutputFormat = "yaml"
	configuration.ObserverPollInterval = 20 * time.Millisecond

	commandArguments := append([]string{"--"}, helperArguments(testInstance, testsupport.HelperModeWriter,
		testsupport.WriterArguments(encodedPayload, nil, 0)...)...)
	output, executionError := executeCommand(testInstance, &supervise.CaptureCommandBuilder{ConfigurationProvider: staticConfiguration(configuration)}, commandArguments...)
	require.NoError(testInstance, executionError)

	var report supervise.CaptureReport
	require.NoError(testInstance, yaml.Unmarshal([]byte(output), &report))
	require.Equal(testInstance, "naïve café\n", report.Stdout)
	require.Equal(testInstance, "latin1", report.Codec)
}

func TestCaptureCommandRejectsUnknownCodec(testInstance *testing.T) {
	commandArguments := append([]string{"--codec", "klingon", "--"}, helperArguments(testInstance, testsupport.HelperModeSleeper,
		testsupport.SleeperArguments(0, 0, testsupport.TerminateDefault)...)...)

	_, executionError := executeCommand(testInstance, &supervise.CaptureCommandBuilder{}, commandArguments...)
	var unknownCodecError codec.UnknownCodecError
	require.ErrorAs(testInstance, executionError, &unknownCodecError)
}

func TestRunCommandReportsCompletion(testInstance *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	loggerProvider := func() *zap.Logger {
		return zap.New(observedCore)
	}

	commandArguments := append([]string{"--timeout", "5s", "--"}, helperArguments(testInstance, testsupport.HelperModeSleeper,
		testsupport.SleeperArguments(50*time.Millisecond, 0, testsupport.TerminateDefault)...)...)

	output, executionError := executeCommand(testInstance, &supervise.RunCommandBuilder{LoggerProvider: loggerProvider}, commandArguments...)
	require.NoError(testInstance, executionError)

	var report map[string]any
	require.NoError(testInstance, json.Unmarshal([]byte(output), &report))
	require.Equal(testInstance, "completed", report["actionTaken"])
	require.EqualValues(testInstance, 0, report["returnCode"])
	require.Equal(testInstance, "1.5s", report["terminateToKill"])
	require.Equal(testInstance, 1, observedLogs.FilterMessage("process started").Len())
}

func TestRunCommandMirrorsExitCodeWithoutTimeout(testInstance *testing.T) {
	commandArguments := append([]string{"--"}, helperArguments(testInstance, testsupport.HelperModeSleeper,
		testsupport.SleeperArguments(0, 9, testsupport.TerminateDefault)...)...)

	output, executionError := executeCommand(testInstance, &supervise.RunCommandBuilder{}, commandArguments...)

	var exitStatusError supervise.ExitStatusError
	require.ErrorAs(testInstance, executionError, &exitStatusError)
	require.Equal(testInstance, 9, exitStatusError.ExitCode())
	require.Contains(testInstance, output, `"returnCode":9`)
}

func TestRunCommandKillsOverrunningProcess(testInstance *testing.T) {
	commandArguments := append([]string{"--timeout", "200ms", "--terminate-to-kill", "0", "--output", "yaml", "--"},
		helperArguments(testInstance, testsupport.HelperModeSleeper, testsupport.SleeperArguments(10*time.Second, 0, testsupport.TerminateIgnore)...)...)

	startTime := time.Now()
	output, executionError := executeCommand(testInstance, &supervise.RunCommandBuilder{}, commandArguments...)
	require.Less(testInstance, time.Since(startTime), 5*time.Second)

	var exitStatusError supervise.ExitStatusError
	require.ErrorAs(testInstance, executionError, &exitStatusError)
	require.False(testInstance, exitStatusError.Exited)
	require.Equal(testInstance, 1, exitStatusError.ExitCode())

	var report map[string]any
	require.NoError(testInstance, yaml.Unmarshal([]byte(output), &report))
	require.Equal(testInstance, "killed", report["actionTaken"])
	require.Nil(testInstance, report["returnCode"])
	require.Equal(testInstance, "0", report["terminateToKill"])
}

func TestRunCommandRejectsInvalidKillPolicy(testInstance *testing.T) {
	_, executionError := executeCommand(testInstance, &supervise.RunCommandBuilder{}, "--terminate-to-kill", "later", "--", "true")
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), "invalid --terminate-to-kill value")
}

func TestWatchCommandPrintsSnapshotsUntilFinished(testInstance *testing.T) {
	commandArguments := append([]string{"--report-interval", testReportIntervalConstant, "--poll-interval", testPollIntervalFlagConstant, "--output", "yaml", "--"},
		helperArguments(testInstance, testsupport.HelperModeWriter,
			testsupport.WriterArguments([]byte(testStdoutPayloadConstant), []byte(testStderrPayloadConstant), testWriterExitCodeConstant)...)...)

	output, executionError := executeCommand(testInstance, &supervise.WatchCommandBuilder{}, commandArguments...)

	var exitStatusError supervise.ExitStatusError
	require.ErrorAs(testInstance, executionError, &exitStatusError)
	require.Equal(testInstance, testWriterExitCodeConstant, exitStatusError.ExitCode())

	var snapshots []taskrecord.Snapshot
	decoder := yaml.NewDecoder(strings.NewReader(output))
	for {
		var snapshot taskrecord.Snapshot
		decodeError := decoder.Decode(&snapshot)
		if errors.Is(decodeError, io.EOF) {
			break
		}
		require.NoError(testInstance, decodeError)
		snapshots = append(snapshots, snapshot)
	}

	require.GreaterOrEqual(testInstance, len(snapshots), 2)
	require.False(testInstance, snapshots[0].IsFinished)
	require.Nil(testInstance, snapshots[0].ReturnCode)
	finalSnapshot := snapshots[len(snapshots)-1]
	require.True(testInstance, finalSnapshot.IsFinished)
	require.NotNil(testInstance, finalSnapshot.ReturnCode)
	require.Equal(testInstance, testWriterExitCodeConstant, *finalSnapshot.ReturnCode)
	require.Equal(testInstance, testStdoutPayloadConstant, finalSnapshot.StdoutData)
	require.Equal(testInstance, testStderrPayloadConstant, finalSnapshot.StderrData)
}
