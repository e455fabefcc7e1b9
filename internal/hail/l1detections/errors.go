package l1detections

import (
	"errors"
	"fmt"
)

// ErrMalformedLine marks a log line that could not be parsed. It is
// recoverable: the line is skipped and parsing continues.
var ErrMalformedLine = errors.New("malformed detection line")

// LineError describes one skipped input line.
type LineError struct {
	Line   int    // 1-based line number
	Text   string // raw line, trimmed
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

func (e *LineError) Unwrap() error { return ErrMalformedLine }
