package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/itesm-showroom/showroom/internal/config"
	"github.com/itesm-showroom/showroom/internal/security"
)

// NewLogger builds the root logger for cfg. Every record passes through a
// RedactingHandler backed by redactor.
func NewLogger(cfg config.LogConfig, w io.Writer, redactor *security.Redactor) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log: invalid level %q", cfg.Level)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	switch cfg.Format {
	case "", "text":
		inner = slog.NewTextHandler(w, opts)
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("log: invalid format %q", cfg.Format)
	}
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}
