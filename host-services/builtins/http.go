// Package builtins holds the host services every host offers.
package builtins

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	hostservices "github.com/synadia-io/accessorhost/host-services"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules/httpclient"
)

const (
	httpServiceMethodGet    = "get"
	httpServiceMethodPost   = "post"
	httpServiceMethodPut    = "put"
	httpServiceMethodDelete = "delete"
	httpServiceMethodHead   = "head"

	// HTTPURLHeader carries the target URL of an http call.
	HTTPURLHeader = "x-accessor-http-url"
	// HTTPHeaderPrefix marks metadata forwarded as request headers.
	HTTPHeaderPrefix = "x-accessor-http-header-"

	defaultHTTPRequestTimeoutMillis = 2500
)

// HTTPResponse is the payload of a successful http call.
type HTTPResponse struct {
	Status        int               `json:"status"`
	StatusMessage string            `json:"status_message"`
	Headers       map[string]string `json:"headers"`
	Body          []byte            `json:"body,omitempty"`
}

type HTTPService struct {
	log    *slog.Logger
	client *httpclient.Client
}

func NewHTTPService(client *httpclient.Client, log *slog.Logger) *HTTPService {
	return &HTTPService{
		log:    log,
		client: client,
	}
}

func (h *HTTPService) Initialize(_ json.RawMessage) error {
	return nil
}

func (h *HTTPService) HandleRequest(ctx context.Context, req hostservices.Request) (hostservices.ServiceResult, error) {
	var method string
	switch req.Method {
	case httpServiceMethodGet:
		method = http.MethodGet
	case httpServiceMethodPost:
		method = http.MethodPost
	case httpServiceMethodPut:
		method = http.MethodPut
	case httpServiceMethodDelete:
		method = http.MethodDelete
	case httpServiceMethodHead:
		method = http.MethodHead
	default:
		h.log.Warn("Received invalid host services RPC request",
			slog.String("service", "http"),
			slog.String("method", req.Method),
		)
		return hostservices.ServiceResultFail(400, "Received invalid host services RPC request"), nil
	}

	target := req.Metadata[HTTPURLHeader]
	if target == "" {
		return hostservices.ServiceResultFail(400, "url is required"), nil
	}

	opts := httpclient.DefaultOptions()
	opts.Method = method
	opts.URL = target
	opts.Timeout = defaultHTTPRequestTimeoutMillis
	opts.Headers = make(map[string]any)
	for k, v := range req.Metadata {
		lk := strings.ToLower(k)
		if name, ok := strings.CutPrefix(lk, HTTPHeaderPrefix); ok {
			opts.Headers[name] = v
		}
	}

	if _, err := opts.ResolveURL(); err != nil {
		h.log.Debug("failed to parse url for http RPC request", slog.String("error", err.Error()))
		return hostservices.ServiceResultFail(400, err.Error()), nil
	}
	if len(req.Data) > 0 && method != http.MethodGet && method != http.MethodHead {
		opts.Body = models.BytesToken(req.Data)
	}

	msg, err := h.client.Do(ctx, opts)
	if err != nil {
		return hostservices.ServiceResultFail(500, "http request failed: "+err.Error()), nil
	}

	resp, _ := json.Marshal(&HTTPResponse{
		Status:        msg.StatusCode,
		StatusMessage: msg.StatusMessage,
		Headers:       msg.Headers,
		Body:          msg.Raw,
	})
	return hostservices.ServiceResultPass(200, "", resp), nil
}
