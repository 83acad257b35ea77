// Package lifecycle reports supervision events: a process coming under
// observation, finishing, terminate and kill signals, and escalation outcomes.
//
// Listener receives the events; NoopListener discards them and
// LoggingListener writes them to a zap logger using MessageFormatter.
package lifecycle
