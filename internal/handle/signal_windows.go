//go:build windows

package handle

// Terminate stops the process. Windows has no interceptable termination
// signal for console-less children, so this is the same as Kill.
func (process *Process) Terminate() error {
	return process.Kill()
}
