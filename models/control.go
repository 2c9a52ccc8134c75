package models

import "encoding/json"

type (
	HostPingResponse struct {
		HostId   string `json:"host_id"`
		Accessor string `json:"accessor"`
		Uptime   string `json:"uptime"`
		Version  string `json:"version"`
	}

	EndpointInfo struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
		Value       string `json:"value,omitempty"`
	}

	HostInfoResponse struct {
		HostId     string         `json:"host_id"`
		Accessor   string         `json:"accessor"`
		Inputs     []EndpointInfo `json:"inputs"`
		Outputs    []EndpointInfo `json:"outputs"`
		Parameters []EndpointInfo `json:"parameters"`
	}

	// ProvideRequest delivers Value to Input and fires the accessor.
	// Value is any JSON document.
	ProvideRequest struct {
		Input string          `json:"input"`
		Value json.RawMessage `json:"value"`
	}

	ProvideResponse struct {
		Accepted bool   `json:"accepted"`
		Message  string `json:"message,omitempty"`
	}

	HostHeartbeat struct {
		HostId    string `json:"host_id"`
		Accessor  string `json:"accessor"`
		Uptime    string `json:"uptime"`
		Firings   int64  `json:"firings"`
		Resources int    `json:"resources"`
	}
)
