// Package testsupport provides helper child processes, a scripted process
// handle and a recording lifecycle listener for package tests.
package testsupport
