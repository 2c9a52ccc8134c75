package eventemitter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/synadia-io/accessorhost/models"
)

var _ models.EventEmitter = (*LogEmitter)(nil)

// LogEmitter writes lifecycle events to a logger instead of publishing
// them. Accessor errors are raised to at least error level.
type LogEmitter struct {
	ctx    context.Context
	logger *slog.Logger
	level  slog.Leveler
}

func NewLogEmitter(ctx context.Context, logger *slog.Logger, level slog.Leveler) *LogEmitter {
	return &LogEmitter{
		ctx:    ctx,
		logger: logger,
		level:  level,
	}
}

func (e *LogEmitter) EmitEvent(from string, event any) error {
	if e.logger == nil {
		return errors.New("logger is nil/not set")
	}
	kind, err := eventKind(event)
	if err != nil {
		return err
	}

	level := e.level.Level()
	attrs := []slog.Attr{
		slog.String("host", from),
		slog.String("kind", kind),
	}
	switch ev := event.(type) {
	case models.AccessorLoadedEvent:
		attrs = append(attrs, slog.String("accessor", ev.Name), slog.Any("inputs", ev.Inputs), slog.Any("outputs", ev.Outputs))
	case models.AccessorInitializedEvent:
		attrs = append(attrs, slog.String("accessor", ev.Name))
	case models.AccessorWrappedUpEvent:
		attrs = append(attrs, slog.String("accessor", ev.Name))
	case models.AccessorErrorEvent:
		attrs = append(attrs, slog.String("accessor", ev.Name), slog.String("err", ev.Message))
		level = max(level, slog.LevelError)
	case models.OutputSentEvent:
		attrs = append(attrs, slog.String("accessor", ev.Name), slog.String("port", ev.Port), slog.Int("channel", ev.Channel), slog.String("value", ev.Value))
	default:
		attrs = append(attrs, slog.Any("event", event))
	}

	e.logger.LogAttrs(e.ctx, level, "accessor event", attrs...)
	return nil
}
