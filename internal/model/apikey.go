package model

import "time"

// APIKey represents a long-lived API key bound to a client. The raw key is
// never stored; only a SHA-256 hash is persisted, plus the first 8 hex
// characters of that hash as a stable public identifier.
type APIKey struct {
	ID        int64      `json:"id"`
	KeyID     string     `json:"key_id"` // First 8 hex chars of the hash
	KeyHash   string     `json:"-"`      // SHA-256 hash, never expose
	ClientID  string     `json:"client_id"`
	Scopes    ScopeList  `json:"scopes"` // JSON array in storage
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil = non-expiring
	IsActive  bool       `json:"is_active"`
	RateLimit int        `json:"rate_limit"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// Expired reports whether the key's expiry, if set, is in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
