// Package logging provides the small leveled logger used to surface
// warnings that the compiler deliberately does not escalate to errors
// (see errs and the "warnings are logged but never raised" rule).
package logging

import (
	"io"
	"log"
	"os"
)

var std = log.New(os.Stderr, "hedag: ", log.LstdFlags)

// Verbose gates Warnf output; flipped by config.Config.Verbose.
var Verbose = true

// Warnf logs a warning if Verbose is enabled. It never returns an error
// and never panics: warnings are informational only.
func Warnf(format string, args ...interface{}) {
	if !Verbose {
		return
	}
	std.Printf(format, args...)
}

// SetOutput redirects the logger, used by tests to capture output.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}
