package lifecycle_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/procwatch/internal/lifecycle"
	"github.com/temirov/procwatch/internal/taskrecord"
)

func finishedSnapshot(returnCode int) taskrecord.Snapshot {
	return taskrecord.Snapshot{
		StdoutData:  "hello world",
		StderrData:  "",
		IsFinished:  true,
		ReturnCode:  &returnCode,
		TimeElapsed: 1234 * time.Millisecond,
	}
}

func TestMessageFormatterSupervisionMessages(testInstance *testing.T) {
	formatter := lifecycle.MessageFormatter{}

	require.Equal(testInstance, "Observing build", formatter.BuildSupervisionStartedMessage(lifecycle.SupervisionEvent{Label: "build"}))
	require.Equal(testInstance, "Observing process", formatter.BuildSupervisionStartedMessage(lifecycle.SupervisionEvent{Label: "  "}))
	require.Equal(
		testInstance,
		"build exited with code 4 after 1.234s (captured 11 B stdout, 0 B stderr)",
		formatter.BuildSupervisionFinishedMessage(lifecycle.SupervisionEvent{Label: "build", Snapshot: finishedSnapshot(4)}),
	)
	require.Equal(
		testInstance,
		"Observer for build stopped: poll failed",
		formatter.BuildObserverFailedMessage(lifecycle.SupervisionEvent{Label: "build"}, errors.New("poll failed")),
	)
}

func TestMessageFormatterSignalAndEscalationMessages(testInstance *testing.T) {
	formatter := lifecycle.MessageFormatter{}

	testCases := []struct {
		name            string
		message         string
		expectedMessage string
	}{
		{
			name:            "signal_delivered",
			message:         formatter.BuildSignalMessage(lifecycle.SignalEvent{Label: "job", Signal: lifecycle.SignalTerminate}),
			expectedMessage: "Sent terminate to job",
		},
		{
			name:            "signal_failed",
			message:         formatter.BuildSignalMessage(lifecycle.SignalEvent{Label: "job", Signal: lifecycle.SignalKill, Failure: os.ErrProcessDone}),
			expectedMessage: "Could not send kill to job: os: process already finished",
		},
		{
			name:            "escalation_completed",
			message:         formatter.BuildEscalationMessage(lifecycle.EscalationEvent{Label: "job", ReturnCode: 0, Exited: true, Action: "completed", Elapsed: 2 * time.Second}),
			expectedMessage: "job exited with code 0 after 2s",
		},
		{
			name:            "escalation_terminated",
			message:         formatter.BuildEscalationMessage(lifecycle.EscalationEvent{Label: "job", ReturnCode: 42, Exited: true, Action: "terminated", Elapsed: 2 * time.Second}),
			expectedMessage: "job exited with code 42 after 2s (terminated)",
		},
		{
			name:            "escalation_killed",
			message:         formatter.BuildEscalationMessage(lifecycle.EscalationEvent{Label: "job", Action: "terminated|killed", Elapsed: 3500 * time.Millisecond}),
			expectedMessage: "job was stopped after 3.5s (terminated|killed); exit status unknown",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedMessage, testCase.message)
		})
	}
}
