package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"Warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelWarn)
	ctx := context.Background()

	l.Debug(ctx, "debug line")
	l.Info(ctx, "info line")
	l.Warn(ctx, "warn line")
	l.Error(ctx, errors.New("boom"), "error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("lines below threshold leaked: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn line") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] error line | error: boom") {
		t.Errorf("missing error line: %q", out)
	}
}

func TestFieldsSortedDeterministically(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelDebug)

	l.Info(context.Background(), "trade executed", map[string]interface{}{
		"symbol": "ETHUSDT",
		"amount": 1000.0,
		"price":  3500.0,
	})

	out := buf.String()
	if !strings.Contains(out, "amount=1000 price=3500 symbol=ETHUSDT") {
		t.Errorf("fields not in sorted order: %q", out)
	}
}
