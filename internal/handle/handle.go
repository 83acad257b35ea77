package handle

import "io"

// Stream is a readable output channel of a child process.
//
// Fd identifies the stream: two streams with the same descriptor are the same
// stream. It is also the descriptor used for readiness checks.
type Stream interface {
	io.Reader
	Fd() uintptr
}

// Handle is a live reference to a running or exited child process.
type Handle interface {
	// Poll reports the exit code without blocking. exited is false while the process runs.
	Poll() (exitCode int, exited bool, pollError error)
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	// Terminate requests a graceful stop that the process may intercept.
	Terminate() error
	// Kill forces the process to stop.
	Kill() error
	// Stdout returns the connected standard output stream or nil.
	Stdout() Stream
	// Stderr returns the connected standard error stream or nil. It may be the same stream as Stdout.
	Stderr() Stream
}
