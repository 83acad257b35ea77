package utils

import "context"

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	processLabelContextKeyConstant          = commandContextKey("processLabel")
)

type commandContextKey string

// CommandContextAccessor stores invocation details in command contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath records the configuration file that was loaded.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	return accessor.withValue(parentContext, configurationFilePathContextKeyConstant, configurationFilePath)
}

// ConfigurationFilePath returns the recorded configuration file path.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	return accessor.stringValue(executionContext, configurationFilePathContextKeyConstant)
}

// WithProcessLabel records the label used in lifecycle events for the supervised process.
func (accessor CommandContextAccessor) WithProcessLabel(parentContext context.Context, processLabel string) context.Context {
	return accessor.withValue(parentContext, processLabelContextKeyConstant, processLabel)
}

// ProcessLabel returns the recorded process label.
func (accessor CommandContextAccessor) ProcessLabel(executionContext context.Context) (string, bool) {
	return accessor.stringValue(executionContext, processLabelContextKeyConstant)
}

func (accessor CommandContextAccessor) withValue(parentContext context.Context, key commandContextKey, value string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, key, value)
}

func (accessor CommandContextAccessor) stringValue(executionContext context.Context, key commandContextKey) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, available := executionContext.Value(key).(string)
	return value, available
}
