package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger. Production defaults to JSON
// output; LOG_FORMAT overrides in either direction.
func NewLogger(cfg *Config) *slog.Logger {
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}
	if format == "" && cfg.IsProduction() {
		format = "json"
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
}
