package accessorhost

import (
	"log/slog"

	"github.com/synadia-io/accessorhost/models"
)

type HostEvent interface {
	models.AccessorLoadedEvent |
		models.AccessorInitializedEvent |
		models.AccessorWrappedUpEvent |
		models.AccessorErrorEvent |
		models.OutputSentEvent
}

func emitHostEvent[T HostEvent](h *Host, in T) {
	err := h.events.EmitEvent(h.hostId, in)
	if err != nil {
		h.logger.Warn("failed to emit host event", slog.Any("event", in), slog.String("err", err.Error()))
	}
}
