// Package cli constructs the procwatch command-line interface, wiring the
// Cobra command hierarchy, the configuration loader and structured logging.
// The supervise subpackage contributes the run, watch and capture commands.
package cli
