package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed rows or metadata call.
type ErrorKind int

const (
	// KindNetwork is a transport-level failure (dial, timeout, reset).
	KindNetwork ErrorKind = iota
	// KindRateLimited is an HTTP 429 response.
	KindRateLimited
	// KindServer is an HTTP 5xx response.
	KindServer
	// KindClient is an HTTP 4xx response other than 429.
	KindClient
	// KindDecode is a malformed or undecodable payload.
	KindDecode
	// KindCancelled is a cooperative cancellation, not a failure.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate-limited"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindDecode:
		return "decode"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether a request failing with this kind may be retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

// Error is a classified API failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Table      string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("api %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind extracts the classification from err, defaulting to KindNetwork for
// unclassified errors and KindCancelled for context errors.
func Kind(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindNetwork
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindRateLimited
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindClient
	default:
		return KindDecode
	}
}

// classifyTransport maps a transport error to an error kind.
func classifyTransport(ctx context.Context, err error) ErrorKind {
	if ctx.Err() != nil {
		return KindCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindNetwork
	}
	return KindNetwork
}
