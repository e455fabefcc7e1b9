package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")

	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op; this should not panic
	SetLogger(nil)
	Logf("test message %d", 1)
}

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	logf := WriterLogger("[hail] ", &buf)
	logf("skipped %d lines", 3)

	out := buf.String()
	if !strings.HasPrefix(out, "[hail] ") {
		t.Errorf("expected prefix, got %q", out)
	}
	if !strings.Contains(out, "skipped 3 lines") {
		t.Errorf("expected message, got %q", out)
	}

	// nil writer is a no-op
	WriterLogger("x", nil)("ignored")
}
