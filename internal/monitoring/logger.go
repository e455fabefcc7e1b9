// Package monitoring holds the process-wide diagnostic logger used by the
// detection and trajectory layers.
package monitoring

import (
	"io"
	"log"
)

// LogFunc is a printf-style logging function.
type LogFunc func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf LogFunc = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// WriterLogger returns a LogFunc that writes prefixed, timestamped lines to w.
// A nil writer yields a no-op logger.
func WriterLogger(prefix string, w io.Writer) LogFunc {
	if w == nil {
		return func(string, ...interface{}) {}
	}
	l := log.New(w, prefix, log.LstdFlags)
	return l.Printf
}
