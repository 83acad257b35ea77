// Package handle defines the process handle consumed by the supervision
// packages and an os/exec backed implementation of it.
//
// Handle exposes a non-blocking Poll, a blocking Wait, Terminate and Kill,
// plus optional output streams. Start launches a child process with piped,
// merged, inherited or discarded output and returns a Process that satisfies
// Handle.
package handle
