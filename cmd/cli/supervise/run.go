package supervise

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/temirov/procwatch/internal/escalation"
	"github.com/temirov/procwatch/internal/handle"
	"github.com/temirov/procwatch/internal/lifecycle"
)

const (
	runCommandUseConstant              = "run [flags] -- command [arguments...]"
	runCommandShortDescriptionConstant = "Run a command and escalate to terminate or kill when it overruns"
	runCommandLongDescriptionConstant  = "run starts a command with inherited output, waits up to --timeout for it to exit and then applies the terminate-to-kill policy. The report lists the exit code and the action taken; procwatch exits with the child's code."
	runTimeoutFlagUsageConstant        = "Maximum time to wait before escalating. Zero waits until the command exits."
	controllerErrorTemplateConstant    = "unable to construct escalation controller: %w"
	waitErrorTemplateConstant          = "unable to wait for %s: %w"
)

// RunReport is the outcome printed by the run command.
type RunReport struct {
	Command         []string          `json:"command" yaml:"command"`
	ReturnCode      *int              `json:"returnCode" yaml:"returnCode"`
	Action          escalation.Action `json:"actionTaken" yaml:"actionTaken"`
	TerminateToKill string            `json:"terminateToKill" yaml:"terminateToKill"`
	ElapsedSeconds  float64           `json:"timeElapsed" yaml:"timeElapsed"`
}

// RunCommandBuilder assembles the run command.
type RunCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the run command.
func (builder *RunCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   runCommandUseConstant,
		Short: runCommandShortDescriptionConstant,
		Long:  runCommandLongDescriptionConstant,
		Args:  requireCommandArguments,
		RunE:  builder.run,
	}

	command.Flags().Duration(timeoutFlagNameConstant, 0, runTimeoutFlagUsageConstant)
	command.Flags().String(terminateToKillFlagNameConstant, "", terminateToKillFlagUsageConstant)
	addSupervisionFlags(command)

	return command, nil
}

func (builder *RunCommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := resolveLogger(builder.LoggerProvider)
	configuration := resolveConfiguration(builder.ConfigurationProvider)

	outputFormat, formatError := resolveOutputFormat(command, configuration)
	if formatError != nil {
		return formatError
	}

	killPolicy := configuration.TerminateToKill
	if command.Flags().Changed(terminateToKillFlagNameConstant) {
		killPolicyValue, _ := command.Flags().GetString(terminateToKillFlagNameConstant)
		parsedPolicy, parseError := escalation.ParseKillPolicy(killPolicyValue)
		if parseError != nil {
			return fmt.Errorf(invalidKillPolicyTemplateConstant, terminateToKillFlagNameConstant, parseError)
		}
		killPolicy = parsedPolicy
	}
	timeout, _ := command.Flags().GetDuration(timeoutFlagNameConstant)
	pollInterval := durationFlagOrDefault(command, pollIntervalFlagNameConstant, configuration.WaitPollInterval)

	label := resolveLabel(command.Context(), arguments)
	controller, controllerError := escalation.NewController(logger, escalation.ControllerConfiguration{
		Label:    label,
		Listener: lifecycle.NewLoggingListener(logger),
	})
	if controllerError != nil {
		return fmt.Errorf(controllerErrorTemplateConstant, controllerError)
	}

	process, startError := startProcess(command, logger, newProcessCommand(arguments, handle.OutputModeInherit, handle.OutputModeInherit), label)
	if startError != nil {
		return startError
	}
	defer process.Close()

	startTime := time.Now()
	var result escalation.Result
	if timeout > 0 {
		escalationResult, waitError := controller.WaitOrTerminate(process, timeout, pollInterval, killPolicy)
		if waitError != nil {
			return fmt.Errorf(waitErrorTemplateConstant, label, waitError)
		}
		result = escalationResult
	} else {
		returnCode, waitError := process.Wait()
		if waitError != nil {
			return fmt.Errorf(waitErrorTemplateConstant, label, waitError)
		}
		result = escalation.Result{ReturnCode: returnCode, Exited: true, Action: escalation.ActionCompleted}
	}

	report := RunReport{
		Command:         append([]string{}, arguments...),
		Action:          result.Action,
		TerminateToKill: killPolicy.String(),
		ElapsedSeconds:  time.Since(startTime).Seconds(),
	}
	if result.Exited {
		returnCode := result.ReturnCode
		report.ReturnCode = &returnCode
	}

	printer := newReportPrinter(outputFormat, command.OutOrStdout())
	if printError := printer.Print(report); printError != nil {
		return printError
	}
	if closeError := printer.Close(); closeError != nil {
		return closeError
	}

	if result.Exited && result.ReturnCode == 0 {
		return nil
	}
	return ExitStatusError{Label: label, ReturnCode: result.ReturnCode, Exited: result.Exited, Action: result.Action.String()}
}
