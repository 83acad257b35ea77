package supervise

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/procwatch/internal/handle"
	"github.com/temirov/procwatch/internal/utils"
)

const (
	timeoutFlagNameConstant                 = "timeout"
	pollIntervalFlagNameConstant            = "poll-interval"
	pollIntervalFlagUsageConstant           = "Interval between exit status checks."
	terminateToKillFlagNameConstant         = "terminate-to-kill"
	terminateToKillFlagUsageConstant        = "Grace period between terminate and kill: none, 0 (kill without terminating) or a duration."
	codecFlagNameConstant                   = "codec"
	codecFlagUsageConstant                  = "Text encoding of the child's output (for example utf-8, latin1). Empty keeps raw bytes."
	outputFlagNameConstant                  = "output"
	outputFlagUsageConstant                 = "Report format: json or yaml."
	processStartErrorTemplateConstant       = "unable to start %s: %w"
	invalidKillPolicyTemplateConstant       = "invalid --%s value: %w"
	invalidOutputFormatTemplateConstant     = "invalid --%s value: %w"
	commandArgumentsRequiredMessageConstant = "a command to supervise is required after --"
	logFieldCommandConstant                 = "command"
	logFieldPidConstant                     = "pid"
	processStartedMessageConstant           = "process started"
)

// LoggerProvider yields the logger commands should use.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider yields the supervision configuration loaded by the application.
type ConfigurationProvider func() CommandConfiguration

func resolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func resolveConfiguration(provider ConfigurationProvider) CommandConfiguration {
	if provider == nil {
		return DefaultCommandConfiguration()
	}
	return provider().Sanitize()
}

// resolveLabel prefers the label stored in the command context and falls back
// to the executable's base name.
func resolveLabel(executionContext context.Context, arguments []string) string {
	if label, available := utils.NewCommandContextAccessor().ProcessLabel(executionContext); available && len(strings.TrimSpace(label)) > 0 {
		return strings.TrimSpace(label)
	}
	return filepath.Base(arguments[0])
}

func addSupervisionFlags(command *cobra.Command) {
	command.Flags().Duration(pollIntervalFlagNameConstant, 0, pollIntervalFlagUsageConstant)
	command.Flags().String(outputFlagNameConstant, "", outputFlagUsageConstant)
	command.Flags().SetInterspersed(false)
}

func durationFlagOrDefault(command *cobra.Command, flagName string, configured time.Duration) time.Duration {
	if command.Flags().Changed(flagName) {
		flagValue, _ := command.Flags().GetDuration(flagName)
		if flagValue > 0 {
			return flagValue
		}
	}
	return configured
}

func stringFlagOrDefault(command *cobra.Command, flagName string, configured string) string {
	if command.Flags().Changed(flagName) {
		flagValue, _ := command.Flags().GetString(flagName)
		return strings.TrimSpace(flagValue)
	}
	return configured
}

func resolveOutputFormat(command *cobra.Command, configuration CommandConfiguration) (OutputFormat, error) {
	outputFormat, parseError := ParseOutputFormat(stringFlagOrDefault(command, outputFlagNameConstant, configuration.OutputFormat))
	if parseError != nil {
		return "", fmt.Errorf(invalidOutputFormatTemplateConstant, outputFlagNameConstant, parseError)
	}
	return outputFormat, nil
}

func startProcess(command *cobra.Command, logger *zap.Logger, processCommand handle.Command, label string) (*handle.Process, error) {
	process, startError := handle.Start(command.Context(), processCommand)
	if startError != nil {
		return nil, fmt.Errorf(processStartErrorTemplateConstant, label, startError)
	}
	logger.Debug(
		processStartedMessageConstant,
		zap.Strings(logFieldCommandConstant, append([]string{processCommand.Name}, processCommand.Arguments...)),
		zap.Int(logFieldPidConstant, process.Pid()),
	)
	return process, nil
}

func newProcessCommand(arguments []string, stdoutMode handle.OutputMode, stderrMode handle.OutputMode) handle.Command {
	return handle.Command{
		Name:       arguments[0],
		Arguments:  append([]string{}, arguments[1:]...),
		StdoutMode: stdoutMode,
		StderrMode: stderrMode,
	}
}

func requireCommandArguments(command *cobra.Command, arguments []string) error {
	if len(arguments) == 0 || len(strings.TrimSpace(arguments[0])) == 0 {
		return errors.New(commandArgumentsRequiredMessageConstant)
	}
	return nil
}
