package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable wraps transport failures from the model provider.
	ErrUnavailable = errors.New("gateway: service unavailable")

	// ErrMalformedResponse matches every *ResponseError.
	ErrMalformedResponse = errors.New("gateway: malformed response")
)

// ResponseError reports output that could not be read as the call's result type.
type ResponseError struct {
	Call   string
	Reason string
	Raw    string
	Err    error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: malformed response: %s: %v", e.Call, e.Reason, e.Err)
	}
	return fmt.Sprintf("gateway: %s: malformed response: %s", e.Call, e.Reason)
}

func (e *ResponseError) Unwrap() error { return e.Err }

func (e *ResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

func malformed(call, reason, raw string, err error) error {
	return &ResponseError{Call: call, Reason: reason, Raw: raw, Err: err}
}
