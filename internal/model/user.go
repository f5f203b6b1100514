package model

import "time"

// User represents an account that can authenticate with a password and be
// issued bearer tokens. Passwords are stored as bcrypt hashes.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"` // bcrypt hash, never expose
	IsActive     bool      `json:"is_active"`
	Scopes       ScopeList `json:"scopes"` // comma-separated in storage
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
