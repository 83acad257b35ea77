// Package escalation bounds how long a caller waits for a process and
// escalates from a graceful terminate to a forced kill when it overruns.
//
// WaitUpTo polls the handle until it exits or the timeout is spent.
// WaitOrTerminate adds the escalation step governed by a KillPolicy and
// reports which signals it sent as an Action bitmask. Both run on the
// caller's goroutine.
package escalation
