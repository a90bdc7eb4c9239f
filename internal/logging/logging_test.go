package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "run_id", "r1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "shown" || record["run_id"] != "r1" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestNewTextDefault(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("hello", "k", 1)
	if got := buf.String(); !strings.Contains(got, "msg=hello") || strings.Contains(got, "hidden") {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "verbose", "text"); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatal("expected format error")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for raw, want := range tests {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v want %v", raw, got, err, want)
		}
	}
}

func TestNilWriterAndLoggerDiscard(t *testing.T) {
	logger, err := New(nil, "bogus", "bogus")
	if err != nil || logger == nil {
		t.Fatalf("expected discard logger, got %v %v", logger, err)
	}
	if OrDiscard(nil) == nil {
		t.Fatal("expected discard logger for nil")
	}
	if l := Discard(); OrDiscard(l) != l {
		t.Fatal("expected logger passthrough")
	}
}
