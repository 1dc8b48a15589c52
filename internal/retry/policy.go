// Package retry drives bounded exponential backoff with jitter for outbound
// calls and classifies failures as retryable or terminal.
package retry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// MaxBackoff caps the delay between attempts.
const MaxBackoff = 90 * time.Second

// Retryable transport statuses. Any other status is a terminal business
// answer and must never be retried.
var retryableStatuses = map[int]struct{}{
	http.StatusRequestTimeout:      {}, // 408
	http.StatusTooManyRequests:     {}, // 429
	http.StatusInternalServerError: {}, // 500
	http.StatusBadGateway:          {}, // 502
	http.StatusServiceUnavailable:  {}, // 503
	http.StatusGatewayTimeout:      {}, // 504
}

// StatusError represents a transport response that arrived with a
// non-success status. Clients return it so the policy can distinguish
// retryable transport statuses from terminal business rejections.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote responded %d: %s", e.StatusCode, e.Body)
}

// ExhaustedError tags the last failure once all attempts are spent. The
// root cause is surfaced unchanged through Unwrap.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Policy holds the backoff parameters for one outbound call site.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy mirrors the configured production defaults.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Delay computes the wait before attempt n (1-based):
// min(BaseDelay * 2^(n-1), MaxBackoff), jittered by ±50% uniform so that
// synchronized callers do not retry in lockstep.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << uint(attempt-1)
	if d > MaxBackoff || d <= 0 {
		d = MaxBackoff
	}
	// uniform in [0.5d, 1.5d)
	jittered := float64(d) * (0.5 + rand.Float64())
	return time.Duration(jittered)
}

// IsRetryableStatus reports whether a transport status is worth retrying.
func IsRetryableStatus(code int) bool {
	_, ok := retryableStatuses[code]
	return ok
}

// IsRetryable classifies a failure: connection failures, TLS failures,
// timeouts and retryable transport statuses are transient; everything
// else, including business rejections, is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatus(statusErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Do runs fn up to MaxAttempts times, sleeping the jittered backoff delay
// between attempts. Attempts are strictly sequential. A terminal failure
// surfaces immediately; once attempts are exhausted the last failure is
// returned wrapped in ExhaustedError.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return &ExhaustedError{Attempts: attempt, Err: lastErr}
		case <-time.After(p.Delay(attempt)):
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}
