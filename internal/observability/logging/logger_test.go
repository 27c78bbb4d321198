package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONLoggerTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "worker", "info", "json")
	logger.Debug("hidden")
	logger.Info("prediction_done", "variant", "stage1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["service"] != "worker" || entry["msg"] != "prediction_done" || entry["variant"] != "stage1" {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
}

func TestTextLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "pneumoctl", "debug", "text").Debug("migrated", "version", 2)
	if out := buf.String(); !strings.Contains(out, "msg=migrated") || !strings.Contains(out, "service=pneumoctl") {
		t.Fatalf("unexpected text output: %q", out)
	}
}
