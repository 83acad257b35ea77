package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/temirov/procwatch/cmd/cli"
	"github.com/temirov/procwatch/cmd/cli/supervise"
	"github.com/temirov/procwatch/internal/testsupport"
)

const (
	testConfigurationFileNameConstant = "config.yaml"
	testStdoutPayloadConstant         = "application stdout\n"
	testStderrPayloadConstant         = "application stderr\n"
	testWriterExitCodeConstant        = 6
	testLabelConstant                 = "nightly-report"
)

func isolateUserConfiguration(t *testing.T) {
	t.Helper()
	configurationHome := t.TempDir()
	t.Setenv("HOME", configurationHome)
	t.Setenv("XDG_CONFIG_HOME", configurationHome)
}

func writerHelperArguments(t *testing.T) []string {
	t.Helper()
	helperCommand := testsupport.HelperCommand(t, testsupport.HelperModeWriter,
		testsupport.WriterArguments([]byte(testStdoutPayloadConstant), []byte(testStderrPayloadConstant), testWriterExitCodeConstant)...)
	return append([]string{helperCommand.Name}, helperCommand.Arguments...)
}

func executeApplication(t *testing.T, arguments ...string) (string, string, error) {
	t.Helper()
	application := cli.NewApplication()
	outputBuffer := &bytes.Buffer{}
	errorBuffer := &bytes.Buffer{}
	application.SetOutput(outputBuffer, errorBuffer)
	application.SetArguments(arguments)
	executionError := application.Execute()
	return outputBuffer.String(), errorBuffer.String(), executionError
}

func TestApplicationCaptureLogsWithLabel(t *testing.T) {
	isolateUserConfiguration(t)

	arguments := []string{"--log-level", "debug", "--log-format", "console", "--label", testLabelConstant, "capture", "--"}
	arguments = append(arguments, writerHelperArguments(t)...)

	output, diagnostics, executionError := executeApplication(t, arguments...)
	require.NoError(t, executionError)

	var report supervise.CaptureReport
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	require.Equal(t, testWriterExitCodeConstant, report.ReturnCode)
	require.Equal(t, testStdoutPayloadConstant, report.Stdout)
	require.Equal(t, testStderrPayloadConstant, report.Stderr)

	require.Contains(t, diagnostics, "configuration initialized")
	require.Contains(t, diagnostics, testLabelConstant+" exited with code 6")
	require.False(t, json.Valid(bytes.TrimSpace([]byte(diagnostics))))
}

func TestApplicationConfigurationFileSelectsOutputFormat(t *testing.T) {
	isolateUserConfiguration(t)

	configurationPath := filepath.Join(t.TempDir(), testConfigurationFileNameConstant)
	configurationContent := "common:\n  log_level: error\nsupervision:\n  output_format: yaml\n  observer_poll_interval: 20ms\n"
	require.NoError(t, os.WriteFile(configurationPath, []byte(configurationContent), 0o600))

	arguments := append([]string{"--config", configurationPath, "capture", "--fail-on-error", "--"}, writerHelperArguments(t)...)
	output, diagnostics, executionError := executeApplication(t, arguments...)

	var failure supervise.CommandFailureError
	require.ErrorAs(t, executionError, &failure)
	require.Equal(t, testWriterExitCodeConstant, failure.ExitCode())
	require.Empty(t, diagnostics)

	var report supervise.CaptureReport
	require.NoError(t, yaml.Unmarshal([]byte(output), &report))
	require.Equal(t, testStdoutPayloadConstant, report.Stdout)
}

func TestApplicationRejectsInvalidLogLevel(t *testing.T) {
	isolateUserConfiguration(t)

	_, _, executionError := executeApplication(t, "--log-level", "verbose", "capture", "--", "true")
	require.Error(t, executionError)
	require.Contains(t, executionError.Error(), "unable to create logger")
}

func TestApplicationRejectsInvalidConfiguration(t *testing.T) {
	isolateUserConfiguration(t)
	t.Setenv("PROCWATCH_SUPERVISION_TERMINATE_TO_KILL", "whenever")

	_, _, executionError := executeApplication(t, "run", "--", "true")
	require.Error(t, executionError)
	require.Contains(t, executionError.Error(), "unable to load configuration")
}

func TestEmbeddedDefaultConfiguration(t *testing.T) {
	configurationContent, configurationType := cli.EmbeddedDefaultConfiguration()
	require.Equal(t, "yaml", configurationType)

	var parsed struct {
		Common struct {
			LogLevel  string `yaml:"log_level"`
			LogFormat string `yaml:"log_format"`
		} `yaml:"common"`
		Supervision map[string]string `yaml:"supervision"`
	}
	require.NoError(t, yaml.Unmarshal(configurationContent, &parsed))
	require.Equal(t, "info", parsed.Common.LogLevel)
	require.Equal(t, "structured", parsed.Common.LogFormat)
	require.Equal(t, "1500ms", parsed.Supervision["terminate_to_kill"])
	require.Equal(t, "100ms", parsed.Supervision["observer_poll_interval"])
	require.Equal(t, "50ms", parsed.Supervision["wait_poll_interval"])

	configurationContent[0] = '#'
	pristineContent, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEqual(t, byte('#'), pristineContent[0])
}
