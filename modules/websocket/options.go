package websocket

import (
	"fmt"
	"strings"
)

const (
	TypeJSON = "application/json"

	DefaultPort = 80
	DefaultHost = "localhost"
)

type ClientOptions struct {
	Host                      string `json:"host"`
	Port                      int    `json:"port"`
	Path                      string `json:"path"`
	ReceiveType               string `json:"receiveType"`
	SendType                  string `json:"sendType"`
	NumberOfRetries           int    `json:"numberOfRetries"`
	TimeBetweenRetries        int    `json:"timeBetweenRetries"`
	DiscardMessagesBeforeOpen bool   `json:"discardMessagesBeforeOpen"`
	ThrottleFactor            int    `json:"throttleFactor"`
	SslTls                    bool   `json:"sslTls"`
	TrustAll                  bool   `json:"trustAll"`
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Host:               DefaultHost,
		Port:               DefaultPort,
		Path:               "/",
		ReceiveType:        TypeJSON,
		SendType:           TypeJSON,
		NumberOfRetries:    1,
		TimeBetweenRetries: 100,
	}
}

func (o ClientOptions) validate() error {
	if o.NumberOfRetries < 0 || o.TimeBetweenRetries < 0 || o.ThrottleFactor < 0 {
		return fmt.Errorf("retry and throttle options must not be negative")
	}
	return validateTypes(o.SendType, o.ReceiveType)
}

func (o ClientOptions) url() string {
	scheme := "ws"
	if o.SslTls {
		scheme = "wss"
	}
	path := o.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, o.Host, o.Port, path)
}

type ServerOptions struct {
	HostInterface string `json:"hostInterface"`
	Port          int    `json:"port"`
	Path          string `json:"path"`
	ReceiveType   string `json:"receiveType"`
	SendType      string `json:"sendType"`
}

func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		HostInterface: DefaultHost,
		Port:          DefaultPort,
		Path:          "/",
		ReceiveType:   TypeJSON,
		SendType:      TypeJSON,
	}
}

func (o ServerOptions) validate() error {
	return validateTypes(o.SendType, o.ReceiveType)
}

func validateTypes(types ...string) error {
	for _, t := range types {
		if t == "" || !strings.Contains(t, "/") {
			return fmt.Errorf("invalid MIME type: %q", t)
		}
	}
	return nil
}
