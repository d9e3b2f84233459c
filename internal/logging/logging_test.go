package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// captureLogOutput temporarily swaps the default logger for one writing to a buffer.
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"Debug JSON", LevelDebug, FormatJSON},
		{"Info Text", LevelInfo, FormatText},
		{"Warn JSON", LevelWarn, FormatJSON},
		{"Error Text", LevelError, FormatText},
		{"Invalid level defaults to Info", Level(99), FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Error("Expected logger to be initialized, got nil")
			}
		})
	}
}

func TestInitLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelWarn, FormatJSON)
	defer InitLogger(LevelInfo, FormatJSON)

	Info("hidden")
	Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, out)
	}
	if entry["msg"] != "shown" || entry["key"] != "value" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, err := time.Parse(time.RFC3339, entry["time"].(string)); err != nil {
		t.Errorf("time not RFC3339: %v", entry["time"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"loud":    LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-123")
	if got := GetRunID(ctx); got != "run-123" {
		t.Errorf("GetRunID() = %q, want run-123", got)
	}
	if got := GetRunID(context.Background()); got != "" {
		t.Errorf("GetRunID() on empty context = %q", got)
	}
	if got := GetRunID(context.WithValue(context.Background(), RunIDKey, 42)); got != "" {
		t.Errorf("GetRunID() with wrong type = %q", got)
	}
}

func TestFileChecked(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelInfo, FormatJSON)
	defer InitLogger(LevelInfo, FormatJSON)

	ctx := WithRunID(context.Background(), "abc")
	FileChecked(ctx, "01GEN.SFM", "GEN", 3, 1500*time.Millisecond)

	out := buf.String()
	for _, want := range []string{`"msg":"file_checked"`, `"run_id":"abc"`, `"book":"GEN"`, `"findings":3`, `"duration_ms":1500`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestDiagnosticsHelpers(t *testing.T) {
	out := captureLogOutput(func() {
		RoundTripFailure("a.usfm", 3, `\v 1 a`, `\v 1a`)
		GrammarRecordSkipped("tags.jsonl", 12, "missing tag")
	})
	for _, want := range []string{"round_trip_failure", `"line":3`, "grammar_record_skipped", "missing tag"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}
