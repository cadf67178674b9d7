// Package revocation tracks access tokens that were logged out before their expiry.
//
// Entries are keyed by the SHA-256 of the raw token and live exactly as long as the
// token itself could still verify, so the set never outgrows the population of live tokens.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const keyPrefix = "revoked:"

// Store is a set of revoked tokens with per-entry expiry.
type Store interface {
	// Revoke adds token until expiresAt. Revoking an already expired token is a no-op.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	// IsRevoked reports membership. Implementations return an error rather than false when
	// the backing store cannot answer.
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Key returns the storage key for token.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}
