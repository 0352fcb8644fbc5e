package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"bindash-server/internal/config"
)

// New builds the process logger. Dev builds get colored tint output with
// source locations; release builds log JSON tagged with version and env.
func New(w io.Writer, cfg config.Config, version string, appName string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.AppEnv == "prod",
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}

// Err renders an error attribute, highlighted by tint in dev.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return tint.Err(err)
}
