package models

import "time"

// IdempotencyTTL bounds how long a cached response is replayed.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyRecord caches the first response to a client-keyed request.
type IdempotencyRecord struct {
	UserID string `json:"user_id"`
	Key    string `json:"key"`

	// RequestHash fingerprints method, path and body of the original request.
	RequestHash string `json:"request_hash"`

	// StatusCode is zero while the claiming request is still running.
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Response    []byte `json:"response,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Completed reports whether a response has been stored.
func (r *IdempotencyRecord) Completed() bool {
	return r.StatusCode != 0
}

// Expired reports whether the record is past its TTL at now.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
