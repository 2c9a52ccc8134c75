package accessorhost

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/synadia-io/accessorhost/models"
)

func (h *Host) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}
		if h.nc.IsClosed() {
			return
		}

		beat := models.HostHeartbeat{
			HostId:    h.hostId,
			Accessor:  h.name,
			Uptime:    time.Since(h.startTime).String(),
			Firings:   h.firings.Load(),
			Resources: h.env.Resources.Len(),
		}

		hbB, err := json.Marshal(beat)
		if err != nil {
			h.logger.Error("failed to Marshal heartbeat", slog.String("err", err.Error()))
			continue
		}

		err = h.nc.Publish(models.HeartbeatSubject(h.hostId), hbB)
		if err != nil {
			h.logger.Error("failed to publish heartbeat", slog.String("err", err.Error()))
		}
	}
}
