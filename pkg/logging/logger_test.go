package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// decode parses the single JSON entry in buf
func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v\n%s", err, buf.String())
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{" Info ", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"LOUD", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.expected)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("TEXT") != FormatText {
		t.Error("TEXT should select the text handler")
	}
	for _, name := range []string{"json", "", "xml"} {
		if ParseFormat(name) != FormatJSON {
			t.Errorf("ParseFormat(%q) should fall back to json", name)
		}
	}
	if FormatText.String() != "text" || FormatJSON.String() != "json" {
		t.Error("unexpected format names")
	}
}

func TestNewLogger_ReadsEnvironment(t *testing.T) {
	t.Setenv(LevelEnv, "error")
	t.Setenv(FormatEnv, "text")

	logger := NewLogger()
	if logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled at error level")
	}
	if _, ok := logger.Handler().(*slog.TextHandler); !ok {
		t.Errorf("expected a text handler, got %T", logger.Handler())
	}
}

func TestLogger_SessionAndTick(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelDebug)

	ctx := WithTick(WithSession(context.Background(), "race-42"), 180)
	logger.Info(ctx, "gate passed", "gate", 3)

	entry := decode(t, &buf)
	if entry["msg"] != "gate passed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["session"] != "race-42" {
		t.Errorf("session = %v", entry["session"])
	}
	if entry["tick"] != float64(180) {
		t.Errorf("tick = %v", entry["tick"])
	}
	if entry["gate"] != float64(3) {
		t.Errorf("gate = %v", entry["gate"])
	}
}

func TestLogger_WithoutSession(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)

	logger.Warn(context.Background(), "craft left course boundaries")

	entry := decode(t, &buf)
	if _, ok := entry["session"]; ok {
		t.Error("unexpected session attribute")
	}
	if _, ok := entry["tick"]; ok {
		t.Error("unexpected tick attribute")
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)
	ctx := context.Background()

	logger.Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug entry written at info level: %s", buf.String())
	}

	logger.Error(ctx, "recording failed", errors.New("disk full"), "dir", "replays")
	entry := decode(t, &buf)
	if entry["level"] != "ERROR" || entry["error"] != "disk full" || entry["dir"] != "replays" {
		t.Errorf("unexpected entry: %v", entry)
	}

	buf.Reset()
	logger.Error(ctx, "no cause", nil)
	entry = decode(t, &buf)
	if _, ok := entry["error"]; ok {
		t.Error("nil error should be omitted")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo).With("component", "telemetry")

	logger.Info(context.Background(), "viewer joined")
	if entry := decode(t, &buf); entry["component"] != "telemetry" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, FormatText)

	logger.Info(WithSession(context.Background(), "abc"), "session started", "gates", 4)

	line := buf.String()
	for _, want := range []string{"msg=\"session started\"", "gates=4", "session=abc"} {
		if !strings.Contains(line, want) {
			t.Errorf("text entry %q missing %q", line, want)
		}
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)

	logger.Info(context.Background(), "connect",
		"api_key", "k-123",
		"Authorization", "Bearer x",
		"db_password", "hunter2",
		"pilot", "Ace",
	)

	entry := decode(t, &buf)
	for _, key := range []string{"api_key", "Authorization", "db_password"} {
		if entry[key] != "[REDACTED]" {
			t.Errorf("%s = %v, want redacted", key, entry[key])
		}
	}
	if entry["pilot"] != "Ace" {
		t.Errorf("pilot = %v", entry["pilot"])
	}
}

func TestSessionContext(t *testing.T) {
	if SessionID(context.Background()) != "" {
		t.Error("empty context should have no session")
	}
	if _, ok := Tick(context.Background()); ok {
		t.Error("empty context should have no tick")
	}

	ctx := WithSession(context.Background(), "")
	id := SessionID(ctx)
	if len(id) != 36 {
		t.Errorf("generated session ID %q is not a UUID", id)
	}
	if NewSessionID() == NewSessionID() {
		t.Error("session IDs should be unique")
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "ignored") != nil {
		t.Error("wrapping nil should return nil")
	}

	cause := errors.New("no such file")
	err := WrapError(cause, "editor: save %s", "track.json")
	if err.Error() != "editor: save track.json: no such file" {
		t.Errorf("message = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if WrapError(cause, "plain").Error() != "plain: no such file" {
		t.Error("message without arguments should not be formatted")
	}
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	if logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("nop logger should only enable errors")
	}
	logger.Error(context.Background(), "discarded", errors.New("x"))
}
