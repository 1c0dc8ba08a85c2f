package security

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newRedactedLogger(r *Redactor) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandler(t *testing.T) {
	t.Parallel()

	const key = "sk-abcdefghijklmnopqrstuvwxyz"

	tests := []struct {
		name string
		log  func(*slog.Logger)
	}{
		{"message", func(l *slog.Logger) { l.Info("key is " + key) }},
		{"attr", func(l *slog.Logger) { l.Info("call", "api_key", key) }},
		{"error attr", func(l *slog.Logger) { l.Warn("failed", "error", errors.New("401 for "+key)) }},
		{"with attrs", func(l *slog.Logger) { l.With("auth", key).Info("x") }},
		{"group", func(l *slog.Logger) { l.WithGroup("provider").Info("x", slog.Group("cfg", "key", key)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, buf := newRedactedLogger(NewRedactor())
			tt.log(logger)
			out := buf.String()
			if strings.Contains(out, key) {
				t.Errorf("secret in output: %s", out)
			}
			if !strings.Contains(out, RedactPlaceholder) {
				t.Errorf("placeholder missing: %s", out)
			}
		})
	}
}

func TestRedactingHandler_KeepsSafeValues(t *testing.T) {
	t.Parallel()

	logger, buf := newRedactedLogger(NewRedactor())
	logger.Debug("conversation call completed", "assistant", "fanuc", "tokens", 52)

	out := buf.String()
	for _, want := range []string{"assistant=fanuc", "tokens=52", "level=DEBUG"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}
