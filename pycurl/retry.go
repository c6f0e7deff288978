package pycurl

import (
	"context"
	"errors"
	"net"
	"time"
)

// DefaultRetryHTTPCodes is the default retry status set.
var DefaultRetryHTTPCodes = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true, 522: true, 524: true,
}

// DefaultBackoff is the default retry backoff curve.
var DefaultBackoff = []time.Duration{5 * time.Second}

// ShouldRetryStatus reports whether status is in the configured retry set.
func ShouldRetryStatus(status int, retryCodes map[int]bool) bool {
	if retryCodes == nil {
		retryCodes = DefaultRetryHTTPCodes
	}
	return retryCodes[status]
}

// ClassifyTransportError maps a transport-level Go error onto the errno
// carrier the source's retry logic keys on (errno 28: operation timeout,
// the common case for net/http); non-retryable errors return ok=false.
func ClassifyTransportError(err error) (errno int, ok bool) {
	if err == nil {
		return 0, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrnoOperationTimeout, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrnoOperationTimeout, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrnoOperationTimeout, true
	}
	return 0, false
}

// Backoff returns the sleep duration for the given 1-based retry count
// against curve, cycling per (retry-1) % len(curve).
func Backoff(retry int, curve []time.Duration) time.Duration {
	if len(curve) == 0 {
		curve = DefaultBackoff
	}
	return curve[(retry-1)%len(curve)]
}

// PlanRetry increments h.Retry and reports whether a retry should proceed
// (false means the lineage terminates with "max retries exceeded"). Ported
// from session.py's _response_retry / the Retry Engine's max-retry check.
func PlanRetry(h *Handle) bool {
	h.Retry++
	if dontRetry, _ := h.Meta["dont_retry"].(bool); dontRetry {
		return false
	}
	return h.Retry <= h.MaxRetries
}
