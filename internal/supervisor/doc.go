// Package supervisor starts background supervision of a process handle and
// returns the task record the observer fills in.
package supervisor
