// Package logger builds the shandler-backed slog loggers used by the CLI.
package logger

import (
	"io"
	"log/slog"
	"time"

	"disorder.dev/shandler"
)

type Config struct {
	Level        string
	TimeFormat   string
	JSON         bool
	Color        bool
	ShortLevels  bool
	WithPid      bool
	GroupOnRight bool
	// GroupFilter hides records logged under these groups.
	GroupFilter []string
}

// New returns a logger that writes records below error level to stdout
// and the rest to stderr.
func New(cfg Config, stdout, stderr []io.Writer) *slog.Logger {
	var handlerOpts []shandler.HandlerOption

	if len(cfg.GroupFilter) > 0 {
		handlerOpts = append(handlerOpts, shandler.WithGroupFilter(cfg.GroupFilter))
	}

	if cfg.ShortLevels {
		handlerOpts = append(handlerOpts, shandler.WithShortLevels())
	}

	if cfg.GroupOnRight {
		handlerOpts = append(handlerOpts, shandler.WithGroupRightJustify())
	}

	handlerOpts = append(handlerOpts, shandler.WithLogLevel(Level(cfg.Level)))

	switch cfg.TimeFormat {
	case "TimeOnly":
		handlerOpts = append(handlerOpts, shandler.WithTimeFormat(time.TimeOnly))
	case "DateOnly":
		handlerOpts = append(handlerOpts, shandler.WithTimeFormat(time.DateOnly))
	case "Stamp":
		handlerOpts = append(handlerOpts, shandler.WithTimeFormat(time.Stamp))
	case "RFC822":
		handlerOpts = append(handlerOpts, shandler.WithTimeFormat(time.RFC822))
	case "RFC3339":
		handlerOpts = append(handlerOpts, shandler.WithTimeFormat(time.RFC3339))
	default:
		handlerOpts = append(handlerOpts, shandler.WithTimeFormat(time.DateTime))
	}

	if cfg.JSON {
		handlerOpts = append(handlerOpts, shandler.WithJSON())
	}

	if cfg.Color {
		handlerOpts = append(handlerOpts, shandler.WithColor())
	}

	if cfg.WithPid {
		handlerOpts = append(handlerOpts, shandler.WithPid())
	}

	handlerOpts = append(handlerOpts, shandler.WithStdOut(stdout...))
	handlerOpts = append(handlerOpts, shandler.WithStdErr(stderr...))

	return slog.New(shandler.NewHandler(handlerOpts...))
}

// Level maps a level name to a slog level. Unknown names mean error.
func Level(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "trace":
		return shandler.LevelTrace
	case "fatal":
		return shandler.LevelFatal
	default:
		return slog.LevelError
	}
}

func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
