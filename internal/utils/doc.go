// Package utils holds the CLI plumbing shared by commands: a Viper backed
// ConfigurationLoader with duration and text decode hooks, a zap
// LoggerFactory, a FlushingSyncer and a CommandContextAccessor.
package utils
