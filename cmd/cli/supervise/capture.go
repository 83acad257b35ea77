package supervise

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/temirov/procwatch/internal/codec"
	"github.com/temirov/procwatch/internal/handle"
	"github.com/temirov/procwatch/internal/supervisor"
	"github.com/temirov/procwatch/internal/taskrecord"
)

const (
	captureCommandUseConstant              = "capture [flags] -- command [arguments...]"
	captureCommandShortDescriptionConstant = "Run a command to completion and report its captured output"
	captureCommandLongDescriptionConstant  = "capture supervises a command until it exits and prints its standard output, standard error and return code. With --fail-on-error a non-zero exit is reported as a failure."
	mergeStderrFlagNameConstant            = "merge-stderr"
	mergeStderrFlagUsageConstant           = "Capture standard error interleaved into standard output."
	failOnErrorFlagNameConstant            = "fail-on-error"
	failOnErrorFlagUsageConstant           = "Fail when the command exits with a non-zero code."
)

// CaptureReport is the outcome printed by the capture command.
type CaptureReport struct {
	Command        []string `json:"command" yaml:"command"`
	ReturnCode     int      `json:"returnCode" yaml:"returnCode"`
	Stdout         string   `json:"stdout" yaml:"stdout"`
	Stderr         string   `json:"stderr" yaml:"stderr"`
	ElapsedSeconds float64  `json:"timeElapsed" yaml:"timeElapsed"`
	Codec          string   `json:"codec,omitempty" yaml:"codec,omitempty"`
}

// CaptureCommandBuilder assembles the capture command.
type CaptureCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the capture command.
func (builder *CaptureCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   captureCommandUseConstant,
		Short: captureCommandShortDescriptionConstant,
		Long:  captureCommandLongDescriptionConstant,
		Args:  requireCommandArguments,
		RunE:  builder.run,
	}

	command.Flags().String(codecFlagNameConstant, "", codecFlagUsageConstant)
	command.Flags().Bool(mergeStderrFlagNameConstant, false, mergeStderrFlagUsageConstant)
	command.Flags().Bool(failOnErrorFlagNameConstant, false, failOnErrorFlagUsageConstant)
	addSupervisionFlags(command)

	return command, nil
}

func (builder *CaptureCommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := resolveLogger(builder.LoggerProvider)
	configuration := resolveConfiguration(builder.ConfigurationProvider)

	outputFormat, formatError := resolveOutputFormat(command, configuration)
	if formatError != nil {
		return formatError
	}
	codecName := stringFlagOrDefault(command, codecFlagNameConstant, configuration.Codec)
	if len(codecName) > 0 {
		if _, lookupError := codec.Lookup(codecName); lookupError != nil {
			return lookupError
		}
	}
	mergeStderr, _ := command.Flags().GetBool(mergeStderrFlagNameConstant)
	failOnError, _ := command.Flags().GetBool(failOnErrorFlagNameConstant)
	pollInterval := durationFlagOrDefault(command, pollIntervalFlagNameConstant, configuration.ObserverPollInterval)

	label := resolveLabel(command.Context(), arguments)
	session, sessionError := newSupervisionSession(logger)
	if sessionError != nil {
		return sessionError
	}

	stderrMode := handle.OutputModePipe
	if mergeStderr {
		stderrMode = handle.OutputModeMerge
	}
	process, startError := startProcess(command, logger, newProcessCommand(arguments, handle.OutputModePipe, stderrMode), label)
	if startError != nil {
		return startError
	}
	defer process.Close()

	record, superviseError := session.service.Supervise(process, supervisor.Options{
		PollInterval: pollInterval,
		Codec:        codecName,
		Label:        label,
		DrainOnExit:  true,
	})
	if superviseError != nil {
		_ = process.Kill()
		return fmt.Errorf(supervisionErrorTemplateConstant, label, superviseError)
	}

	returnCode, waitError := session.waitToFinish(command, record, configuration.ReportInterval, pollInterval)
	if waitError != nil {
		return waitError
	}

	snapshot := record.Snapshot()
	report := CaptureReport{
		Command:        append([]string{}, arguments...),
		ReturnCode:     returnCode,
		Stdout:         snapshot.StdoutData,
		Stderr:         snapshot.StderrData,
		ElapsedSeconds: snapshot.ElapsedSeconds,
		Codec:          snapshot.Codec,
	}

	printer := newReportPrinter(outputFormat, command.OutOrStdout())
	if printError := printer.Print(report); printError != nil {
		return printError
	}
	if closeError := printer.Close(); closeError != nil {
		return closeError
	}

	if failOnError && returnCode != 0 {
		return CommandFailureError{
			Command:    report.Command,
			ReturnCode: returnCode,
			Stdout:     report.Stdout,
			Stderr:     report.Stderr,
		}
	}
	return nil
}

// waitToFinish blocks on the record in slices of sliceDuration so observer
// failures and cancellation are noticed.
func (session *supervisionSession) waitToFinish(command *cobra.Command, record *taskrecord.Record, sliceDuration time.Duration, pollInterval time.Duration) (int, error) {
	executionContext := command.Context()
	for {
		returnCode, finished := record.WaitToFinish(sliceDuration, pollInterval)
		if finished {
			return returnCode, nil
		}
		select {
		case failure := <-session.failures:
			return 0, failure
		case <-executionContext.Done():
			return 0, executionContext.Err()
		default:
		}
	}
}
