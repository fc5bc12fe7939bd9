package obs

import (
	"bytes"
	"encoding/json"
	"log/slog"
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
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitLoggerWriter(t *testing.T) {
	defer InitLogger()
	var buf bytes.Buffer
	InitLoggerWriter(&buf, "warn")
	Logger.Info("hidden")
	Logger.Warn("batch_cancelled", "batch_id", "b1")
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "batch_cancelled" || line["batch_id"] != "b1" {
		t.Fatalf("unexpected record: %v", line)
	}
}
