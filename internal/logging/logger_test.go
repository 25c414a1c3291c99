package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/knxnetip/internal/config"
)

func TestLoggerJSONIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	l := &Logger{Logger: slog.New(handler).With(slog.String("component", "routing"))}
	l.Info("started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if record["component"] != "routing" {
		t.Errorf("component = %v, want routing", record["component"])
	}
	if record["msg"] != "started" {
		t.Errorf("msg = %v, want started", record["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewRespectsLevelFilter(t *testing.T) {
	l := New(config.LoggingConfig{Level: "warn", Format: "json", Output: "stdout"}, "tunnel")
	if l.Enabled(nil, slog.LevelInfo) {
		t.Error("expected info level disabled when configured level is warn")
	}
	if !l.Enabled(nil, slog.LevelError) {
		t.Error("expected error level enabled when configured level is warn")
	}
}

func TestNewTextFormat(t *testing.T) {
	l := New(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, "store")
	if _, ok := l.Handler().(*slog.TextHandler); !ok {
		t.Errorf("Handler() = %T, want *slog.TextHandler", l.Handler())
	}
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := &Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	derived := base.With("session", "abc")
	derived.Info("event")

	if !strings.Contains(buf.String(), `"session":"abc"`) {
		t.Errorf("output %q missing session attribute", buf.String())
	}
}
