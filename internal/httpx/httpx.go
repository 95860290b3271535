// Package httpx provides shared HTTP client plumbing for the broker's
// outbound calls: bounded per-call timeouts and a distinct timeout error
// kind. An unbounded hang on a metadata fetch or token exchange would stall
// the whole request path, so every outbound call goes through a client
// built here.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single outbound HTTP call
const DefaultTimeout = 15 * time.Second

// ErrTimeout indicates an outbound call exceeded its deadline
var ErrTimeout = errors.New("request timed out")

// NewClient creates an HTTP client with the given per-call timeout.
// A zero timeout falls back to DefaultTimeout. The transport may be nil,
// in which case the default transport is used; tests inject fixture
// round trippers here.
func NewClient(timeout time.Duration, transport http.RoundTripper) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// WrapTimeout converts deadline and net-timeout failures into ErrTimeout so
// callers can distinguish "upstream is slow" from "upstream said no".
// Other errors pass through unchanged.
func WrapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
