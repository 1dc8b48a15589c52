// Package outbound builds signed, idempotency-tagged HTTP requests to the
// counterpart service, applies the retry policy and collapses every call
// into exactly one of three outcomes: Accepted, Rejected or Unknown.
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"wallet2bank/internal/auth"
	"wallet2bank/internal/retry"
)

// Outcome is the three-way collapse of a remote call. After Unknown the
// caller cannot tell whether the remote side completed the operation; it
// must never assume non-occurrence.
type Outcome int

const (
	// Accepted means the remote reported success.
	Accepted Outcome = iota
	// Rejected means the remote reported a terminal business failure.
	Rejected
	// Unknown means retries exhausted without a definitive answer.
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "ACCEPTED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Result is the collapsed outcome of a signed outbound call. StatusCode and
// Body are populated for Accepted and Rejected; Err carries the exhausted
// root cause for Unknown.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Err        error
}

// requestBuildError marks a failure that happened before any bytes were
// transmitted. It is the only error class that may collapse to Rejected.
type requestBuildError struct {
	err error
}

func (e *requestBuildError) Error() string {
	return "failed to build request: " + e.err.Error()
}

func (e *requestBuildError) Unwrap() error { return e.err }

// Caller sends signed requests to one counterpart service. Both services
// construct one per relationship, with the shared secret injected rather
// than read from any global.
type Caller struct {
	baseURL string
	secret  string
	policy  retry.Policy
	client  *http.Client
}

// healthTimeout bounds the advisory liveness probe.
const healthTimeout = 3 * time.Second

// NewCaller creates a Caller for the counterpart service at baseURL.
func NewCaller(baseURL, secret string, policy retry.Policy, timeout time.Duration) *Caller {
	return &Caller{
		baseURL: baseURL,
		secret:  secret,
		policy:  policy,
		client:  &http.Client{Timeout: timeout},
	}
}

// Post sends a signed JSON POST and collapses the outcome. transactionID is
// the correlation id signed into the headers alongside idempotencyKey and a
// freshly minted timestamp.
func (c *Caller) Post(ctx context.Context, path, transactionID, idempotencyKey string, body any) Result {
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{Outcome: Rejected, Err: fmt.Errorf("failed to encode request body: %w", err)}
	}
	return c.send(ctx, http.MethodPost, path, transactionID, idempotencyKey, payload)
}

// Get sends a signed GET and collapses the outcome the same way.
func (c *Caller) Get(ctx context.Context, path, transactionID, idempotencyKey string) Result {
	return c.send(ctx, http.MethodGet, path, transactionID, idempotencyKey, nil)
}

func (c *Caller) send(ctx context.Context, method, path, transactionID, idempotencyKey string, payload []byte) Result {
	var (
		statusCode int
		respBody   []byte
	)

	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return &requestBuildError{err: err}
		}
		// Timestamp is minted per attempt so a slow backoff schedule
		// cannot push the request past the receiver's freshness window.
		timestamp := time.Now().UTC().Format(time.RFC3339)
		req.Header.Set(auth.HeaderIdempotencyKey, idempotencyKey)
		req.Header.Set(auth.HeaderTimestamp, timestamp)
		req.Header.Set(auth.HeaderSignature, auth.Sign(c.secret, idempotencyKey, timestamp, transactionID))
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if retry.IsRetryableStatus(resp.StatusCode) {
			return &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		statusCode = resp.StatusCode
		respBody = body
		return nil
	})

	if err != nil {
		// Rejected means the remote answered, and a remote answer always
		// arrives as a status code with a nil error. Only failures from
		// before anything was transmitted may collapse to Rejected; every
		// other error (exhausted retries, a cancelled context mid-flight,
		// a broken response read) leaves the remote state unknowable.
		var build *requestBuildError
		if errors.As(err, &build) {
			return Result{Outcome: Rejected, Err: err}
		}
		return Result{Outcome: Unknown, Err: err}
	}

	if statusCode >= 200 && statusCode < 300 {
		return Result{Outcome: Accepted, StatusCode: statusCode, Body: respBody}
	}
	return Result{Outcome: Rejected, StatusCode: statusCode, Body: respBody}
}

// CheckHealth probes the counterpart liveness endpoint: one short attempt,
// no retry. Advisory only; a healthy probe does not guarantee the next call
// succeeds, so Unknown handling stays mandatory regardless.
func (c *Caller) CheckHealth(ctx context.Context, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
