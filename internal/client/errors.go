package client

import (
	"fmt"

	"reliapi-demo/internal/model"
)

// TransportError reports a call that never produced an HTTP response:
// connection refused, DNS failure, timeout or cancellation.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response. Body is the raw response text;
// Detail is set when the body is a ReliAPI error envelope.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Detail     *model.ErrorDetail
}

func (e *StatusError) Error() string {
	if e.Detail != nil && e.Detail.Code != "" {
		return fmt.Sprintf("%s: status %d: %s: %s", e.Endpoint, e.StatusCode, e.Detail.Code, e.Detail.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
}

// DecodeError reports a 2xx response whose body is not a valid envelope.
type DecodeError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode %d response: %v", e.Endpoint, e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
