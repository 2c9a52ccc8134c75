// Package hostservices lets remote accessors call capabilities of this
// host over NATS request/reply.
package hostservices

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	headerCode    = "x-accessor-hs-code"
	headerMessage = "x-accessor-hs-msg"
	messageOk     = "OK"
)

type ServiceResult struct {
	Code    uint
	Message string
	Data    []byte
}

func (r ServiceResult) Error() error {
	return fmt.Errorf("Error: %s (%d)", r.Message, r.Code)
}

func (r ServiceResult) IsError() bool {
	return r.Code != 200
}

func ServiceResultFail(code uint, message string) ServiceResult {
	return ServiceResult{
		Code:    code,
		Message: message,
		Data:    []byte{},
	}
}

func ServiceResultPass(code uint, message string, data []byte) ServiceResult {
	return ServiceResult{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Request is one decoded RPC call.
type Request struct {
	HostId    string
	Namespace string
	Accessor  string
	Method    string
	Metadata  map[string]string
	Data      []byte
}

type HostService interface {
	Initialize(json.RawMessage) error
	HandleRequest(ctx context.Context, req Request) (ServiceResult, error)
}
