package dbus

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologLoggerWritesEachLine(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	logger := NewLogger(zl)

	logger.Log(LevelError, "first", "second")

	out := buf.String()
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected 2 log lines, got: %q", out)
	}
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("log output missing a line: %q", out)
	}
	if !strings.Contains(out, `"level":"error"`) {
		t.Errorf("expected error level in output: %q", out)
	}
}

func TestDiscardLoggerDoesNotPanic(t *testing.T) {
	discardLogger.Log(LevelVerbose, "ignored")
}
