package supervise

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/temirov/procwatch/internal/escalation"
	"github.com/temirov/procwatch/internal/observer"
)

const (
	observerPollIntervalKeyConstant       = "observer_poll_interval"
	waitPollIntervalKeyConstant           = "wait_poll_interval"
	terminateToKillKeyConstant            = "terminate_to_kill"
	codecKeyConstant                      = "codec"
	reportIntervalKeyConstant             = "report_interval"
	outputFormatKeyConstant               = "output_format"
	defaultReportIntervalConstant         = time.Second
	configurationKeySeparatorConstant     = "."
	killPolicyNumberTemplateConstant      = "%v"
	killPolicyDecodeErrorTemplateConstant = "invalid terminate_to_kill value %v: %w"
)

// CommandConfiguration captures the supervision settings shared by run, watch and capture.
type CommandConfiguration struct {
	ObserverPollInterval time.Duration         `mapstructure:"observer_poll_interval"`
	WaitPollInterval     time.Duration         `mapstructure:"wait_poll_interval"`
	TerminateToKill      escalation.KillPolicy `mapstructure:"terminate_to_kill"`
	Codec                string                `mapstructure:"codec"`
	ReportInterval       time.Duration         `mapstructure:"report_interval"`
	OutputFormat         string                `mapstructure:"output_format"`
}

// DefaultCommandConfiguration returns the built-in supervision settings.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		ObserverPollInterval: observer.DefaultPollInterval,
		WaitPollInterval:     escalation.DefaultPollInterval,
		TerminateToKill:      escalation.DefaultKillPolicy(),
		ReportInterval:       defaultReportIntervalConstant,
		OutputFormat:         string(OutputFormatJSON),
	}
}

// DefaultConfigurationValues exposes the defaults keyed under configurationPrefix.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	qualify := func(key string) string {
		if len(configurationPrefix) == 0 {
			return key
		}
		return configurationPrefix + configurationKeySeparatorConstant + key
	}
	return map[string]any{
		qualify(observerPollIntervalKeyConstant): defaults.ObserverPollInterval.String(),
		qualify(waitPollIntervalKeyConstant):     defaults.WaitPollInterval.String(),
		qualify(terminateToKillKeyConstant):      defaults.TerminateToKill.String(),
		qualify(codecKeyConstant):                defaults.Codec,
		qualify(reportIntervalKeyConstant):       defaults.ReportInterval.String(),
		qualify(outputFormatKeyConstant):         defaults.OutputFormat,
	}
}

// Sanitize replaces non-positive intervals with defaults and normalizes names.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration
	if sanitized.ObserverPollInterval <= 0 {
		sanitized.ObserverPollInterval = defaults.ObserverPollInterval
	}
	if sanitized.WaitPollInterval <= 0 {
		sanitized.WaitPollInterval = defaults.WaitPollInterval
	}
	if sanitized.ReportInterval <= 0 {
		sanitized.ReportInterval = defaults.ReportInterval
	}
	sanitized.Codec = strings.TrimSpace(sanitized.Codec)
	sanitized.OutputFormat = strings.ToLower(strings.TrimSpace(sanitized.OutputFormat))
	if len(sanitized.OutputFormat) == 0 {
		sanitized.OutputFormat = defaults.OutputFormat
	}
	return sanitized
}

// KillPolicyDecodeHook decodes numeric configuration values such as
// `terminate_to_kill: 0` or `terminate_to_kill: 2.5` into a kill policy.
// String values are handled by the kill policy's UnmarshalText.
func KillPolicyDecodeHook() mapstructure.DecodeHookFuncType {
	killPolicyType := reflect.TypeOf(escalation.KillPolicy{})
	return func(sourceType reflect.Type, targetType reflect.Type, data any) (any, error) {
		if targetType != killPolicyType {
			return data, nil
		}
		switch sourceType.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
		default:
			return data, nil
		}
		policy, parseError := escalation.ParseKillPolicy(fmt.Sprintf(killPolicyNumberTemplateConstant, data))
		if parseError != nil {
			return nil, fmt.Errorf(killPolicyDecodeErrorTemplateConstant, data, parseError)
		}
		return policy, nil
	}
}
