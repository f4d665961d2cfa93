package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var (
	// ErrClosed is returned for calls submitted after Close.
	ErrClosed = errors.New("rate limited client closed")
	// ErrCallTimeout marks an attempt that hit the per-call timeout.
	ErrCallTimeout = errors.New("rpc call timeout")
)

// RPCError is the terminal failure of a call after retries.
type RPCError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

var rateLimitMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
	"rate-limit",
	"ratelimit",
	"request limit",
	"limit exceeded",
	"exceeded the rps",
	"-32005",
}

// IsRateLimited reports whether err looks like a provider rate-limit response.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether err is an attempt-level timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCallTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransient is the default retry classifier.
func IsTransient(err error) bool {
	return IsRateLimited(err) || IsTimeout(err)
}

// Any combines classifiers; an error is retryable if any of them says so.
func Any(classifiers ...func(error) bool) func(error) bool {
	return func(err error) bool {
		for _, c := range classifiers {
			if c != nil && c(err) {
				return true
			}
		}
		return false
	}
}
