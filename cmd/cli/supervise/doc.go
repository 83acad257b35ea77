// Package supervise provides the run, watch and capture commands. Each
// command launches a child process, supervises it with the observer or the
// escalation controller, and prints a JSON or YAML report.
package supervise
