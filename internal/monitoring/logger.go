// Package monitoring holds the diagnostic logger shared by the extraction stages.
package monitoring

import (
	"log"
	"sync/atomic"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger so tests and the CLI can redirect or mute stage output.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose toggles Debugf output.
func SetVerbose(on bool) { verbose.Store(on) }

// Debugf logs through Logf only when verbose output is enabled.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}

// Timed logs the elapsed time of a stage when the returned func is called.
//
//	defer monitoring.Timed("[fill] priority flood")()
func Timed(label string) func() {
	start := time.Now()
	return func() {
		Logf("%s took %s", label, time.Since(start).Round(time.Microsecond))
	}
}
