package main

import (
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/alecthomas/kong"
	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost/internal/logger"
	natslogger "github.com/synadia-io/accessorhost/internal/nats-logger"
)

func configureLogger(cfg Globals, nc *nats.Conn, hostId string) *slog.Logger {
	var filter []string
	if cfg.LogHideConsole {
		filter = append(filter, "console")
	}

	lc := logger.Config{
		Level:        cfg.LogLevel,
		TimeFormat:   cfg.LogTimeFormat,
		JSON:         cfg.LogJSON,
		Color:        cfg.LogColor,
		ShortLevels:  cfg.LogShortLevels,
		WithPid:      cfg.LogWithPid,
		GroupOnRight: cfg.LogGroupOnRight,
		GroupFilter:  filter,
	}

	stdoutWriters := []io.Writer{}
	stderrWriters := []io.Writer{}

	if slices.Contains(cfg.Target, "std") {
		stdoutWriters = append(stdoutWriters, os.Stdout)
		stderrWriters = append(stderrWriters, os.Stderr)
	}
	if slices.Contains(cfg.Target, "file") {
		stdout, err := os.Create("accessorhost.log")
		if err == nil {
			stderr, err := os.Create("accessorhost.err")
			if err == nil {
				stdoutWriters = append(stdoutWriters, stdout)
				stderrWriters = append(stderrWriters, stderr)
			}
		}
	}
	if slices.Contains(cfg.Target, "nats") && nc != nil {
		stdout, stderr := natslogger.ForHost(nc, hostId)
		stdoutWriters = append(stdoutWriters, stdout)
		stderrWriters = append(stderrWriters, stderr)
	}

	return logger.New(lc, stdoutWriters, stderrWriters)
}

func logConfig(wrapped kong.ConfigurationLoader, logger *slog.Logger) kong.ConfigurationLoader {
	return func(r io.Reader) (kong.Resolver, error) {
		if n, ok := r.(interface{ Name() string }); ok {
			logger.Debug("loading config", slog.String("file", n.Name()))
		}
		return wrapped(r)
	}
}
