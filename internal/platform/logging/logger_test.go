package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/daniacca/epicell/internal/epi"
)

var _ epi.Logger = (*Logger)(nil)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Debugf("debug %d", 1)
	logger.Infof("info %d", 2)
	logger.Warnf("warn %d", 3)
	logger.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("Expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") || !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("Expected warn and error lines, got %q", out)
	}
}

func TestLogger_UnknownLevelLogsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "nonsense")
	logger.Debugf("hidden")
	logger.Infof("info")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "[INFO] info") {
		t.Errorf("Unexpected log output: %q", buf.String())
	}
	if logger.Level() != LevelInfo {
		t.Errorf("Level() = %s, expected info", logger.Level())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"DEBUG":   LevelDebug,
		" info ":  LevelInfo,
		"warning": LevelWarn,
		"Warn":    LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, expected %s", in, got, want)
		}
	}
}
