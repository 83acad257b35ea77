package escalation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/procwatch/internal/escalation"
)

func TestActionString(testInstance *testing.T) {
	testCases := []struct {
		name           string
		action         escalation.Action
		expectedString string
	}{
		{name: "completed", action: escalation.ActionCompleted, expectedString: "completed"},
		{name: "terminated", action: escalation.ActionTerminated, expectedString: "terminated"},
		{name: "killed", action: escalation.ActionKilled, expectedString: "killed"},
		{name: "terminated_and_killed", action: escalation.ActionTerminated | escalation.ActionKilled, expectedString: "terminated|killed"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedString, testCase.action.String())
			marshaled, marshalError := testCase.action.MarshalText()
			require.NoError(testInstance, marshalError)
			require.Equal(testInstance, testCase.expectedString, string(marshaled))
		})
	}
}

func TestActionHas(testInstance *testing.T) {
	combined := escalation.ActionTerminated | escalation.ActionKilled
	require.True(testInstance, combined.Has(escalation.ActionTerminated))
	require.True(testInstance, combined.Has(escalation.ActionKilled))
	require.False(testInstance, escalation.ActionTerminated.Has(escalation.ActionKilled))
	require.Equal(testInstance, 0, int(escalation.ActionCompleted))
	require.Equal(testInstance, 1, int(escalation.ActionTerminated))
	require.Equal(testInstance, 2, int(escalation.ActionKilled))
}

func TestParseKillPolicy(testInstance *testing.T) {
	testCases := []struct {
		name            string
		input           string
		expectKills     bool
		expectImmediate bool
		expectDelay     time.Duration
		expectString    string
		expectError     bool
	}{
		{name: "none", input: "none", expectString: "none"},
		{name: "never_alias", input: " Never ", expectString: "none"},
		{name: "zero", input: "0", expectKills: true, expectImmediate: true, expectString: "0"},
		{name: "zero_duration", input: "0s", expectKills: true, expectImmediate: true, expectString: "0"},
		{name: "duration", input: "1500ms", expectKills: true, expectDelay: 1500 * time.Millisecond, expectString: "1.5s"},
		{name: "seconds", input: "2", expectKills: true, expectDelay: 2 * time.Second, expectString: "2s"},
		{name: "fractional_seconds", input: "0.25", expectKills: true, expectDelay: 250 * time.Millisecond, expectString: "250ms"},
		{name: "negative", input: "-1s", expectError: true},
		{name: "garbage", input: "soon", expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			policy, parseError := escalation.ParseKillPolicy(testCase.input)
			if testCase.expectError {
				require.Error(testInstance, parseError)
				return
			}
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectKills, policy.Kills())
			require.Equal(testInstance, testCase.expectImmediate, policy.Immediate())
			require.Equal(testInstance, testCase.expectDelay, policy.Delay())
			require.Equal(testInstance, testCase.expectString, policy.String())
		})
	}
}

func TestKillPolicyConstructors(testInstance *testing.T) {
	require.False(testInstance, escalation.NeverKill().Kills())
	require.False(testInstance, escalation.KillPolicy{}.Kills())
	require.True(testInstance, escalation.KillImmediately().Immediate())
	require.True(testInstance, escalation.KillAfter(0).Immediate())
	require.Equal(testInstance, escalation.DefaultTerminateToKill, escalation.DefaultKillPolicy().Delay())
	require.False(testInstance, escalation.DefaultKillPolicy().Immediate())

	var decoded escalation.KillPolicy
	require.NoError(testInstance, decoded.UnmarshalText([]byte("750ms")))
	require.Equal(testInstance, escalation.KillAfter(750*time.Millisecond), decoded)
	require.Error(testInstance, decoded.UnmarshalText([]byte("eventually")))
}
