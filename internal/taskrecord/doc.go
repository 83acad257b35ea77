// Package taskrecord holds the concurrently readable state of a process under
// background supervision: accumulated output, elapsed time, completion flag
// and exit code.
package taskrecord
