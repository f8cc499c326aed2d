// Package output provides env-gated debug console helpers for the CLI
// entrypoint and setup flows. Library code (the facade and its
// components) never imports this package; only the process edges do.
package output

import (
	"fmt"
	"os"
)

func debugEnabled() bool {
	return os.Getenv("OPENGOAT_DEBUG") != ""
}

// Debugf prints a debug line to stdout only when OPENGOAT_DEBUG is set.
func Debugf(format string, args ...interface{}) {
	if !debugEnabled() {
		return
	}
	fmt.Printf("[debug] "+format+"\n", args...)
}

// Infof always prints an informational line to stdout.
func Infof(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// Warnf prints a warning line to stderr.
func Warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[warn] "+format+"\n", args...)
}
