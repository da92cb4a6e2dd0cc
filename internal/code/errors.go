package code

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TransportError means the request never got an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("judge0 %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteRejectedError is returned for any non-2xx response. Body is the raw
// response body, kept verbatim for diagnostics.
type RemoteRejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("judge0 %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// ProtocolError means a 2xx body could not be decoded or lacked a required field.
type ProtocolError struct {
	Op   string
	Body string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("judge0 %s: malformed response: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ExecutionTimeoutError is returned when no terminal status was observed within
// the attempt budget. The remote job keeps running; Token can be polled later.
type ExecutionTimeoutError struct {
	Token    string
	Attempts int
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("judge0: execution timeout after %d polls (token %s)", e.Attempts, e.Token)
}

// IsRetryable reports whether running the whole job again may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var transportErr *TransportError
	var rejectedErr *RemoteRejectedError
	var timeoutErr *ExecutionTimeoutError
	switch {
	case errors.As(err, &transportErr), errors.As(err, &timeoutErr):
		return true
	case errors.As(err, &rejectedErr):
		return rejectedErr.StatusCode == http.StatusTooManyRequests || rejectedErr.StatusCode >= 500
	default:
		return false
	}
}
