//go:build unix

package handle

import "syscall"

// Terminate sends SIGTERM to the process.
func (process *Process) Terminate() error {
	return process.signal(syscall.SIGTERM)
}
