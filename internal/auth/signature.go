// Package auth implements the HMAC request signing scheme shared by the
// wallet and bank services. Every cross-service call carries an idempotency
// key, an RFC3339 timestamp and a hex HMAC-SHA256 signature over the three
// correlation fields.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// HeaderIdempotencyKey carries the caller-minted dedup token.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderTimestamp carries the request creation instant (RFC3339).
	HeaderTimestamp = "X-Auth-Timestamp"
	// HeaderSignature carries the hex HMAC-SHA256 request signature.
	HeaderSignature = "X-Auth-Signature"

	// DefaultFreshnessWindow is how long a signed request stays acceptable.
	DefaultFreshnessWindow = 180 * time.Second
)

var (
	// ErrMissingTimestamp is returned when the timestamp header is absent.
	ErrMissingTimestamp = errors.New("request timestamp does not exist")

	// ErrTimestampInFuture is returned for timestamps ahead of the verifier clock.
	ErrTimestampInFuture = errors.New("request timestamp is invalid")

	// ErrRequestExpired is returned when the freshness window has elapsed.
	ErrRequestExpired = errors.New("request lifetime expired")

	// ErrMissingIdempotencyKey is returned when the key header is absent.
	ErrMissingIdempotencyKey = errors.New("idempotency-key header is missing")

	// ErrInvalidSignature is returned on any signature mismatch.
	ErrInvalidSignature = errors.New("invalid request signature")
)

// Sign computes the hex HMAC-SHA256 signature over
// idempotencyKey + timestamp + transactionID.
func Sign(secret, idempotencyKey, timestamp, transactionID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(idempotencyKey + timestamp + transactionID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares it in constant time.
func Verify(secret, timestamp, idempotencyKey, transactionID, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(secret, idempotencyKey, timestamp, transactionID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CheckFreshness validates that timestamp parses, is not in the future
// relative to now, and that now has not passed timestamp+window.
// A zero window falls back to DefaultFreshnessWindow.
func CheckFreshness(timestamp string, now time.Time, window time.Duration) error {
	if timestamp == "" {
		return ErrMissingTimestamp
	}
	if window == 0 {
		window = DefaultFreshnessWindow
	}
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingTimestamp, err)
	}
	if ts.Unix() > now.Unix() {
		return ErrTimestampInFuture
	}
	if now.Unix() > ts.Add(window).Unix() {
		return ErrRequestExpired
	}
	return nil
}

// VerifyRequest is the ingress gate both services run before touching any
// business state: timestamp freshness first, then the HMAC signature over
// the header idempotency key, the header timestamp and the transaction id
// taken from the request body.
func VerifyRequest(secret string, header http.Header, transactionID string, now time.Time, window time.Duration) error {
	timestamp := header.Get(HeaderTimestamp)
	if err := CheckFreshness(timestamp, now, window); err != nil {
		return err
	}
	idempotencyKey := header.Get(HeaderIdempotencyKey)
	if idempotencyKey == "" {
		return ErrMissingIdempotencyKey
	}
	if !Verify(secret, timestamp, idempotencyKey, transactionID, header.Get(HeaderSignature)) {
		return ErrInvalidSignature
	}
	return nil
}
