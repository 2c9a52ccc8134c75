package accessorhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/micro"
	"github.com/synadia-io/accessorhost/internal/actor"
	"github.com/synadia-io/accessorhost/models"
)

var ErrNoNatsConn = errors.New("host has no nats connection")

const provideTimeout = 10 * time.Second

// Serve exposes the host's control endpoints over NATS and starts sending
// heartbeats every interval. An interval of zero turns heartbeats off.
func (h *Host) Serve(heartbeatInterval time.Duration) error {
	if h.nc == nil {
		return ErrNoNatsConn
	}

	var err error
	h.service, err = micro.AddService(h.nc, micro.Config{
		Name:        "accessorhost",
		Version:     serviceVersion(h.version),
		Description: fmt.Sprintf("Accessor: %s", h.name),
	})
	if err != nil {
		return err
	}

	var errs error
	errs = errors.Join(errs, h.service.AddEndpoint("PingHost", micro.HandlerFunc(h.handlePing()), micro.WithEndpointSubject(models.PingSubject(h.hostId))))
	errs = errors.Join(errs, h.service.AddEndpoint("GetHostInfo", micro.HandlerFunc(h.handleInfo()), micro.WithEndpointSubject(models.InfoSubject(h.hostId))))
	errs = errors.Join(errs, h.service.AddEndpoint("Provide", micro.HandlerFunc(h.handleProvide()), micro.WithEndpointSubject(models.ProvideSubject(h.hostId))))
	if errs != nil {
		return errs
	}

	if heartbeatInterval > 0 {
		go h.heartbeat(heartbeatInterval)
	}

	h.logger.Info("Serving accessor host",
		slog.String("nats_server", h.nc.ConnectedUrl()),
		slog.String("start_time", h.startTime.Format(time.RFC3339)))
	return nil
}

func (h *Host) handlePing() func(micro.Request) {
	return func(r micro.Request) {
		err := r.RespondJSON(models.HostPingResponse{
			HostId:   h.hostId,
			Accessor: h.name,
			Uptime:   time.Since(h.startTime).String(),
			Version:  h.version,
		})
		if err != nil {
			h.logger.Error("failed to respond to ping request", slog.String("err", err.Error()))
		}
	}
}

func (h *Host) handleInfo() func(micro.Request) {
	return func(r micro.Request) {
		err := r.RespondJSON(models.HostInfoResponse{
			HostId:     h.hostId,
			Accessor:   h.name,
			Inputs:     h.endpointInfo(actor.KindInput),
			Outputs:    h.endpointInfo(actor.KindOutput),
			Parameters: h.endpointInfo(actor.KindParameter),
		})
		if err != nil {
			h.logger.Error("failed to respond to info request", slog.String("err", err.Error()))
		}
	}
}

func (h *Host) handleProvide() func(micro.Request) {
	return func(r micro.Request) {
		req := new(models.ProvideRequest)
		err := json.Unmarshal(r.Data(), req)
		if err != nil {
			h.handlerError(r, err, "400", "failed to unmarshal provide request")
			return
		}

		ctx, cancel := context.WithTimeout(h.ctx, provideTimeout)
		defer cancel()
		err = h.ProvideJSON(ctx, req.Input, req.Value)
		if err != nil {
			code := "500"
			switch {
			case errors.Is(err, actor.ErrNoSuchEndpoint):
				code = "404"
			case errors.Is(err, ErrInvalidValue):
				code = "400"
			}
			h.handlerError(r, err, code, "failed to provide input")
			return
		}

		err = r.RespondJSON(models.ProvideResponse{Accepted: true})
		if err != nil {
			h.logger.Error("failed to respond to provide request", slog.String("err", err.Error()))
		}
	}
}

func (h *Host) endpointInfo(kind actor.Kind) []models.EndpointInfo {
	names := h.actor.Names(kind)
	out := make([]models.EndpointInfo, 0, len(names))
	for _, n := range names {
		ep, ok := h.actor.Endpoint(n)
		if !ok {
			continue
		}
		info := models.EndpointInfo{
			Name:        n,
			Type:        ep.Type.String(),
			Description: ep.Description,
		}
		if t, err := h.actor.GetValue(n); err == nil && t != nil {
			info.Value = t.String()
		}
		out = append(out, info)
	}
	return out
}

func (h *Host) handlerError(r micro.Request, err error, code, msg string) {
	if msg != "" {
		h.logger.Error(msg, slog.String("err", err.Error()))
	}

	errMsg := struct {
		Error string `json:"error"`
	}{
		Error: err.Error(),
	}

	errMsgB, err := json.Marshal(errMsg)
	if err != nil {
		h.logger.Error("failed to marshal error message", slog.String("err", err.Error()))
		errMsgB = []byte(`{}`)
	}

	err = r.Error(code, msg, errMsgB)
	if err != nil {
		h.logger.Error("failed to send micro request error message", slog.String("err", err.Error()))
	}
}

// micro insists on a semantic version
func serviceVersion(v string) string {
	if v == "" || v == "development" {
		return "0.0.0"
	}
	return v
}
