package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/procwatch/internal/codec"
	"github.com/temirov/procwatch/internal/handle"
	"github.com/temirov/procwatch/internal/supervisor"
	"github.com/temirov/procwatch/internal/taskrecord"
	"github.com/temirov/procwatch/internal/testsupport"
)

const (
	testPollIntervalConstant   = 20 * time.Millisecond
	testWaitTimeoutConstant    = 10 * time.Second
	testWriterExitCodeConstant = 3
)

func startHelper(testInstance *testing.T, command handle.Command) *handle.Process {
	testInstance.Helper()
	process, startError := handle.Start(context.Background(), command)
	require.NoError(testInstance, startError)
	testInstance.Cleanup(func() {
		_ = process.Kill()
		_, _ = process.Wait()
		_ = process.Close()
	})
	return process
}

func waitForRecord(testInstance *testing.T, record *taskrecord.Record) int {
	testInstance.Helper()
	returnCode, finished := record.WaitToFinish(testWaitTimeoutConstant, 10*time.Millisecond)
	require.True(testInstance, finished)
	return returnCode
}

func TestNewServiceValidation(testInstance *testing.T) {
	service, creationError := supervisor.NewService(nil, supervisor.ServiceConfiguration{})
	require.ErrorIs(testInstance, creationError, supervisor.ErrLoggerNotConfigured)
	require.Nil(testInstance, service)

	service, creationError = supervisor.NewService(zap.NewNop(), supervisor.ServiceConfiguration{})
	require.NoError(testInstance, creationError)
	require.NotNil(testInstance, service)
}

func TestSuperviseInBackgroundRejectsUnknownCodec(testInstance *testing.T) {
	scriptedHandle := testsupport.NewScriptedHandle(0, 0)

	record, superviseError := supervisor.SuperviseInBackground(scriptedHandle, testPollIntervalConstant, "klingon")

	var unknownCodecError codec.UnknownCodecError
	require.ErrorAs(testInstance, superviseError, &unknownCodecError)
	require.Nil(testInstance, record)
	require.Zero(testInstance, scriptedHandle.PollCount())
}

func TestSuperviseInBackgroundCapturesChildOutput(testInstance *testing.T) {
	stdoutPayload := []byte("standard output line\n")
	stderrPayload := []byte("standard error line\n")
	process := startHelper(testInstance, testsupport.HelperCommand(
		testInstance,
		testsupport.HelperModeWriter,
		testsupport.WriterArguments(stdoutPayload, stderrPayload, testWriterExitCodeConstant)...,
	))

	record, superviseError := supervisor.SuperviseInBackground(process, testPollIntervalConstant, "")
	require.NoError(testInstance, superviseError)
	require.False(testInstance, record.IsFinished())

	require.Equal(testInstance, testWriterExitCodeConstant, waitForRecord(testInstance, record))
	require.Equal(testInstance, stdoutPayload, record.StdoutData())
	require.Equal(testInstance, stderrPayload, record.StderrData())
	require.Empty(testInstance, record.Codec())
}

func TestSuperviseInBackgroundMergedStderr(testInstance *testing.T) {
	command := testsupport.HelperCommand(
		testInstance,
		testsupport.HelperModeWriter,
		testsupport.WriterArguments([]byte("out "), []byte("err"), 0)...,
	)
	command.StderrMode = handle.OutputModeMerge
	process := startHelper(testInstance, command)

	record, superviseError := supervisor.SuperviseInBackground(process, testPollIntervalConstant, "")
	require.NoError(testInstance, superviseError)

	require.Zero(testInstance, waitForRecord(testInstance, record))
	require.Equal(testInstance, "out err", string(record.StdoutData()))
	require.Empty(testInstance, record.StderrData())
}

func TestCodecOutputReencodesToRawOutput(testInstance *testing.T) {
	testCases := []struct {
		name      string
		codecName string
		payload   []byte
	}{
		{name: "latin1", codecName: "latin1", payload: []byte{'c', 'a', 'f', 0xe9, ' ', 0xfc, 'b', 'e', 'r', '\n'}},
		{name: "utf8", codecName: "utf-8", payload: []byte("naïve ☕ façade\n")},
		{name: "utf16", codecName: "utf-16le", payload: []byte{'h', 0x00, 0xe9, 0x00, 0x15, 0x26, '\n', 0x00}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			arguments := testsupport.WriterArguments(testCase.payload, nil, 0)

			rawProcess := startHelper(testInstance, testsupport.HelperCommand(testInstance, testsupport.HelperModeWriter, arguments...))
			rawRecord, superviseError := supervisor.SuperviseInBackground(rawProcess, testPollIntervalConstant, "")
			require.NoError(testInstance, superviseError)

			textProcess := startHelper(testInstance, testsupport.HelperCommand(testInstance, testsupport.HelperModeWriter, arguments...))
			textRecord, superviseError := supervisor.SuperviseInBackground(textProcess, testPollIntervalConstant, testCase.codecName)
			require.NoError(testInstance, superviseError)

			waitForRecord(testInstance, rawRecord)
			waitForRecord(testInstance, textRecord)
			require.Equal(testInstance, testCase.codecName, textRecord.Codec())

			textCodec, lookupError := codec.Lookup(testCase.codecName)
			require.NoError(testInstance, lookupError)
			reencoded, encodeError := textCodec.Encode(textRecord.StdoutData())
			require.NoError(testInstance, encodeError)
			require.Equal(testInstance, rawRecord.StdoutData(), reencoded)
			require.Equal(testInstance, testCase.payload, rawRecord.StdoutData())
		})
	}
}

func TestServiceLogsLifecycle(testInstance *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	service, creationError := supervisor.NewService(zap.New(observedCore), supervisor.ServiceConfiguration{})
	require.NoError(testInstance, creationError)

	scriptedHandle := testsupport.NewScriptedHandle(50*time.Millisecond, 6)
	record, superviseError := service.Supervise(scriptedHandle, supervisor.Options{PollInterval: testPollIntervalConstant, Label: "scripted-job"})
	require.NoError(testInstance, superviseError)
	require.Equal(testInstance, 6, waitForRecord(testInstance, record))

	require.Eventually(testInstance, func() bool {
		return observedLogs.FilterMessageSnippet("scripted-job exited with code 6").Len() == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(testInstance, 1, observedLogs.FilterMessage("starting background supervision").Len())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Observing scripted-job").Len())
}

func TestSlowPrinterScenario(testInstance *testing.T) {
	if testing.Short() {
		testInstance.Skip("slow printer scenario takes about fourteen seconds")
	}

	process := startHelper(testInstance, testsupport.HelperCommand(testInstance, testsupport.HelperModeSlowPrinter))
	startTime := time.Now()

	record, superviseError := supervisor.SuperviseInBackground(process, supervisor.DefaultPollInterval, "")
	require.NoError(testInstance, superviseError)
	require.False(testInstance, record.IsFinished())

	sleepUntil := func(offset time.Duration) {
		time.Sleep(time.Until(startTime.Add(offset)))
	}

	sleepUntil(3 * time.Second)
	require.Equal(testInstance, "Hello World\n", string(record.StdoutData()))
	require.Empty(testInstance, record.StderrData())
	require.False(testInstance, record.IsFinished())

	sleepUntil(6 * time.Second)
	require.Equal(testInstance, "Hello World\nCheese\n", string(record.StdoutData()))
	require.Equal(testInstance, "Goodbye ", string(record.StderrData()))
	require.False(testInstance, record.IsFinished())

	sleepUntil(13500 * time.Millisecond)
	require.True(testInstance, record.IsFinished())
	returnCode, finished := record.ReturnCode()
	require.True(testInstance, finished)
	require.Equal(testInstance, testsupport.SlowPrinterExitCode, returnCode)
	require.Equal(testInstance, "Hello World\nCheese\n", string(record.StdoutData()))
	require.Contains(testInstance, string(record.StderrData()), "Goodbye Cruel World")
}
