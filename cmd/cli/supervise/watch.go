package supervise

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/procwatch/internal/codec"
	"github.com/temirov/procwatch/internal/escalation"
	"github.com/temirov/procwatch/internal/handle"
	"github.com/temirov/procwatch/internal/lifecycle"
	"github.com/temirov/procwatch/internal/observer"
	"github.com/temirov/procwatch/internal/supervisor"
	"github.com/temirov/procwatch/internal/taskrecord"
)

const (
	watchCommandUseConstant              = "watch [flags] -- command [arguments...]"
	watchCommandShortDescriptionConstant = "Supervise a command in the background and report its progress"
	watchCommandLongDescriptionConstant  = "watch captures a command's output in the background and prints a snapshot of the task record every --report-interval until it finishes. With --timeout the escalation policy runs alongside the observer."
	watchTimeoutFlagUsageConstant        = "Escalate when the command is still running after this long. Zero disables escalation."
	reportIntervalFlagNameConstant       = "report-interval"
	reportIntervalFlagUsageConstant      = "Interval between printed snapshots."
	serviceErrorTemplateConstant         = "unable to construct supervisor: %w"
	supervisionErrorTemplateConstant     = "unable to supervise %s: %w"
	escalationFinishedMessageConstant    = "escalation finished while watching"
	logFieldActionConstant               = "action"
)

// WatchCommandBuilder assembles the watch command.
type WatchCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the watch command.
func (builder *WatchCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   watchCommandUseConstant,
		Short: watchCommandShortDescriptionConstant,
		Long:  watchCommandLongDescriptionConstant,
		Args:  requireCommandArguments,
		RunE:  builder.run,
	}

	command.Flags().Duration(timeoutFlagNameConstant, 0, watchTimeoutFlagUsageConstant)
	command.Flags().String(terminateToKillFlagNameConstant, "", terminateToKillFlagUsageConstant)
	command.Flags().Duration(reportIntervalFlagNameConstant, 0, reportIntervalFlagUsageConstant)
	command.Flags().String(codecFlagNameConstant, "", codecFlagUsageConstant)
	addSupervisionFlags(command)

	return command, nil
}

func (builder *WatchCommandBuilder) run(command *cobra.Command, arguments []string) error {
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
	codecName := stringFlagOrDefault(command, codecFlagNameConstant, configuration.Codec)
	if len(codecName) > 0 {
		if _, lookupError := codec.Lookup(codecName); lookupError != nil {
			return lookupError
		}
	}
	timeout, _ := command.Flags().GetDuration(timeoutFlagNameConstant)
	reportInterval := durationFlagOrDefault(command, reportIntervalFlagNameConstant, configuration.ReportInterval)
	observerPollInterval := durationFlagOrDefault(command, pollIntervalFlagNameConstant, configuration.ObserverPollInterval)
	waitPollInterval := durationFlagOrDefault(command, pollIntervalFlagNameConstant, configuration.WaitPollInterval)

	label := resolveLabel(command.Context(), arguments)
	session, sessionError := newSupervisionSession(logger)
	if sessionError != nil {
		return sessionError
	}

	process, startError := startProcess(command, logger, newProcessCommand(arguments, handle.OutputModePipe, handle.OutputModePipe), label)
	if startError != nil {
		return startError
	}
	defer process.Close()

	record, superviseError := session.service.Supervise(process, supervisor.Options{
		PollInterval: observerPollInterval,
		Codec:        codecName,
		Label:        label,
	})
	if superviseError != nil {
		_ = process.Kill()
		return fmt.Errorf(supervisionErrorTemplateConstant, label, superviseError)
	}

	printer := newReportPrinter(outputFormat, command.OutOrStdout())
	group, groupContext := errgroup.WithContext(command.Context())

	if timeout > 0 {
		controller, controllerError := escalation.NewController(logger, escalation.ControllerConfiguration{
			Label:    label,
			Listener: lifecycle.NewLoggingListener(logger),
		})
		if controllerError != nil {
			_ = process.Kill()
			return fmt.Errorf(controllerErrorTemplateConstant, controllerError)
		}
		group.Go(func() error {
			result, waitError := controller.WaitOrTerminate(process, timeout, waitPollInterval, killPolicy)
			if waitError != nil {
				return fmt.Errorf(waitErrorTemplateConstant, label, waitError)
			}
			logger.Debug(escalationFinishedMessageConstant, zap.Stringer(logFieldActionConstant, result.Action))
			return nil
		})
	}

	group.Go(func() error {
		return reportUntilFinished(groupContext, record, session.failures, reportInterval, printer)
	})

	if groupError := group.Wait(); groupError != nil {
		return groupError
	}
	if closeError := printer.Close(); closeError != nil {
		return closeError
	}

	returnCode, _ := record.ReturnCode()
	if returnCode == 0 {
		return nil
	}
	return ExitStatusError{Label: label, ReturnCode: returnCode, Exited: true}
}

// reportUntilFinished prints a snapshot every reportInterval and a final one
// once the record finishes.
func reportUntilFinished(executionContext context.Context, record *taskrecord.Record, failures <-chan observer.FatalError, reportInterval time.Duration, printer *reportPrinter) error {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-record.Done():
			return printer.Print(record.Snapshot())
		case failure := <-failures:
			return failure
		case <-executionContext.Done():
			return executionContext.Err()
		case <-ticker.C:
			if printError := printer.Print(record.Snapshot()); printError != nil {
				return printError
			}
		}
	}
}

// supervisionSession routes observer failures to the command instead of
// crashing the process.
type supervisionSession struct {
	service  *supervisor.Service
	failures chan observer.FatalError
	once     sync.Once
}

func newSupervisionSession(logger *zap.Logger) (*supervisionSession, error) {
	session := &supervisionSession{failures: make(chan observer.FatalError, 1)}
	service, serviceError := supervisor.NewService(logger, supervisor.ServiceConfiguration{
		FailureHandler: func(failure observer.FatalError) {
			session.once.Do(func() {
				session.failures <- failure
			})
		},
	})
	if serviceError != nil {
		return nil, fmt.Errorf(serviceErrorTemplateConstant, serviceError)
	}
	session.service = service
	return session, nil
}
