package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/temirov/procwatch/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
	defaultExitCodeConstant   = 1
)

type exitCoder interface {
	ExitCode() int
}

// main executes the procwatch command-line application. Errors that carry an
// exit code, such as a supervised child's failure, determine the exit status.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		exitCode := defaultExitCodeConstant
		var codedError exitCoder
		if errors.As(executionError, &codedError) {
			exitCode = codedError.ExitCode()
		}
		os.Exit(exitCode)
	}
}
