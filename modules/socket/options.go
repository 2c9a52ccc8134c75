package socket

import (
	"fmt"
	"slices"
	"strings"

	"github.com/synadia-io/accessorhost/internal/imagecodec"
)

const (
	DefaultPort = 4000
	DefaultHost = "localhost"
)

// ClientOptions configure a SocketClient. Times are in milliseconds except
// IdleTimeout, which is in seconds.
type ClientOptions struct {
	ConnectTimeout            int    `json:"connectTimeout"`
	DiscardMessagesBeforeOpen bool   `json:"discardMessagesBeforeOpen"`
	EmitBatchDataAsAvailable  bool   `json:"emitBatchDataAsAvailable"`
	IdleTimeout               int    `json:"idleTimeout"`
	KeepAlive                 bool   `json:"keepAlive"`
	MaxFrameSize              int    `json:"maxFrameSize"`
	MaxUnsentMessages         int    `json:"maxUnsentMessages"`
	NoDelay                   bool   `json:"noDelay"`
	PfxKeyCertPassword        string `json:"pfxKeyCertPassword"`
	PfxKeyCertPath            string `json:"pfxKeyCertPath"`
	RawBytes                  bool   `json:"rawBytes"`
	ReceiveBufferSize         int    `json:"receiveBufferSize"`
	ReceiveType               string `json:"receiveType"`
	ReconnectAttempts         int    `json:"reconnectAttempts"`
	ReconnectInterval         int    `json:"reconnectInterval"`
	SendBufferSize            int    `json:"sendBufferSize"`
	SendType                  string `json:"sendType"`
	SerializeReceivedArrays   bool   `json:"serializeReceivedArrays"`
	SslTls                    bool   `json:"sslTls"`
	TrustAll                  bool   `json:"trustAll"`
	TrustedCACertPath         string `json:"trustedCACertPath"`
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		ConnectTimeout:          6000,
		KeepAlive:               true,
		MaxFrameSize:            DefaultMaxFrameSize,
		MaxUnsentMessages:       100,
		NoDelay:                 true,
		ReceiveBufferSize:       65536,
		ReceiveType:             "string",
		ReconnectAttempts:       10,
		ReconnectInterval:       100,
		SendBufferSize:          65536,
		SendType:                "string",
		SerializeReceivedArrays: true,
		TrustAll:                true,
	}
}

func (o ClientOptions) validate() error {
	if err := validateTypes(o.SendType, o.ReceiveType); err != nil {
		return err
	}
	if o.ReconnectAttempts < 0 || o.ReconnectInterval < 0 || o.ConnectTimeout < 0 {
		return fmt.Errorf("reconnect and timeout options must not be negative")
	}
	if o.MaxFrameSize < 0 {
		return fmt.Errorf("maxFrameSize must not be negative")
	}
	return nil
}

func (o ClientOptions) framing() framing {
	return framing{
		rawBytes:    o.RawBytes,
		sendType:    o.SendType,
		receiveType: o.ReceiveType,
		serialize:   o.SerializeReceivedArrays,
		batch:       o.EmitBatchDataAsAvailable,
		idleTimeout: o.IdleTimeout,
		maxFrame:    o.MaxFrameSize,
	}
}

// ServerOptions configure a SocketServer.
type ServerOptions struct {
	ClientAuth               string `json:"clientAuth"`
	EmitBatchDataAsAvailable bool   `json:"emitBatchDataAsAvailable"`
	HostInterface            string `json:"hostInterface"`
	IdleTimeout              int    `json:"idleTimeout"`
	KeepAlive                bool   `json:"keepAlive"`
	MaxFrameSize             int    `json:"maxFrameSize"`
	NoDelay                  bool   `json:"noDelay"`
	PfxKeyCertPassword       string `json:"pfxKeyCertPassword"`
	PfxKeyCertPath           string `json:"pfxKeyCertPath"`
	Port                     int    `json:"port"`
	RawBytes                 bool   `json:"rawBytes"`
	ReceiveBufferSize        int    `json:"receiveBufferSize"`
	ReceiveType              string `json:"receiveType"`
	SendBufferSize           int    `json:"sendBufferSize"`
	SendType                 string `json:"sendType"`
	SerializeReceivedArrays  bool   `json:"serializeReceivedArrays"`
	SslTls                   bool   `json:"sslTls"`
	TrustedCACertPath        string `json:"trustedCACertPath"`
}

func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		ClientAuth:              "none",
		HostInterface:           "0.0.0.0",
		KeepAlive:               true,
		MaxFrameSize:            DefaultMaxFrameSize,
		NoDelay:                 true,
		Port:                    DefaultPort,
		ReceiveBufferSize:       65536,
		ReceiveType:             "string",
		SendBufferSize:          65536,
		SendType:                "string",
		SerializeReceivedArrays: true,
	}
}

func (o ServerOptions) validate() error {
	if err := validateTypes(o.SendType, o.ReceiveType); err != nil {
		return err
	}
	switch o.ClientAuth {
	case "none", "request", "required":
	default:
		return fmt.Errorf("invalid clientAuth: %s", o.ClientAuth)
	}
	if o.SslTls && o.PfxKeyCertPath == "" {
		return fmt.Errorf("sslTls requires pfxKeyCertPath")
	}
	if o.MaxFrameSize < 0 {
		return fmt.Errorf("maxFrameSize must not be negative")
	}
	return nil
}

func (o ServerOptions) framing() framing {
	return framing{
		rawBytes:    o.RawBytes,
		sendType:    o.SendType,
		receiveType: o.ReceiveType,
		serialize:   o.SerializeReceivedArrays,
		batch:       o.EmitBatchDataAsAvailable,
		idleTimeout: o.IdleTimeout,
		maxFrame:    o.MaxFrameSize,
	}
}

// ReceiveTypes lists the types data can be received as.
func ReceiveTypes() []string {
	out := append([]string{"string", "image"}, numericTypeNames()...)
	slices.Sort(out)
	return out
}

// SendTypes lists the types data can be sent as.
func SendTypes() []string {
	out := append([]string{"string", "image"}, numericTypeNames()...)
	out = append(out, imagecodec.Formats()...)
	slices.Sort(out)
	return slices.Compact(out)
}

func validateTypes(sendType, receiveType string) error {
	if !slices.Contains(SendTypes(), strings.ToLower(sendType)) {
		return fmt.Errorf("invalid sendType: %s", sendType)
	}
	if !slices.Contains(ReceiveTypes(), strings.ToLower(receiveType)) {
		return fmt.Errorf("invalid receiveType: %s", receiveType)
	}
	return nil
}
