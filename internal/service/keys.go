package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/store"
)

// ErrInvalidCredentials is the uniform rejection for any failed credential
// check. Unknown, revoked, and expired credentials all collapse into this
// one error so callers cannot distinguish them.
var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	rawKeyLength = 32
	keyIDLength  = 8
	keyAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// KeyService issues, verifies, revokes, and configures API keys. Raw keys
// are high-entropy random secrets, so a fast SHA-256 hash is sufficient for
// storage (unlike user passwords, which get bcrypt).
type KeyService struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewKeyService creates a KeyService backed by the given store.
func NewKeyService(st *store.Store, logger *slog.Logger) *KeyService {
	return &KeyService{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Issue generates a new API key for a client. The raw key is returned
// exactly once and is never stored or logged; losing it means issuing a
// new key. ttlDays <= 0 creates a non-expiring key.
func (s *KeyService) Issue(ctx context.Context, clientID string, scopes model.ScopeList, ttlDays, rateLimit int) (string, *model.APIKey, error) {
	rawKey, err := generateRawKey()
	if err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}

	keyHash := HashKey(rawKey)

	var expiresAt *time.Time
	if ttlDays > 0 {
		t := s.now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour)
		expiresAt = &t
	}

	key := &model.APIKey{
		KeyID:     keyHash[:keyIDLength],
		KeyHash:   keyHash,
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: expiresAt,
		IsActive:  true,
		RateLimit: rateLimit,
	}

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("save api key: %w", err)
	}

	s.logger.Info("api key issued", "key_id", key.KeyID, "client_id", clientID, "scopes", scopes)
	return rawKey, key, nil
}

// Verify checks a presented raw key against stored hashes. On success the
// key's last_used timestamp is refreshed (last-writer-wins; it is a usage
// hint, not a security control). All failure causes reject uniformly.
func (s *KeyService) Verify(ctx context.Context, rawKey string) (*model.APIKey, error) {
	hash := HashKey(rawKey)

	key, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("api key lookup failed", "error", err)
		}
		return nil, ErrInvalidCredentials
	}

	if !key.IsActive {
		s.logger.Warn("rejected revoked api key", "key_id", key.KeyID)
		return nil, ErrInvalidCredentials
	}

	if key.Expired(s.now()) {
		s.logger.Warn("rejected expired api key", "key_id", key.KeyID)
		return nil, ErrInvalidCredentials
	}

	if err := s.store.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		// Verification already succeeded; a failed hint update is not fatal.
		s.logger.Warn("failed to update api key last_used", "key_id", key.KeyID, "error", err)
	}

	return key, nil
}

// Revoke deactivates an API key by its public key ID. Revoking an
// already-revoked key succeeds as a no-op.
func (s *KeyService) Revoke(ctx context.Context, keyID string) error {
	if err := s.store.RevokeAPIKey(ctx, keyID); err != nil {
		return err
	}
	s.logger.Info("api key revoked", "key_id", keyID)
	return nil
}

// UpdateRateLimit sets the per-window request quota for an API key.
func (s *KeyService) UpdateRateLimit(ctx context.Context, keyID string, rateLimit int) error {
	if err := s.store.UpdateAPIKeyRateLimit(ctx, keyID, rateLimit); err != nil {
		return err
	}
	s.logger.Info("api key rate limit updated", "key_id", keyID, "rate_limit", rateLimit)
	return nil
}

// List returns API keys, optionally filtered by client ID, with offset/limit
// pagination.
func (s *KeyService) List(ctx context.Context, clientID string, offset, limit int) ([]model.APIKey, error) {
	return s.store.ListAPIKeys(ctx, clientID, offset, limit)
}

// HashKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}

// generateRawKey produces a fixed-length alphanumeric secret from a
// cryptographically secure random source.
func generateRawKey() (string, error) {
	max := big.NewInt(int64(len(keyAlphabet)))
	buf := make([]byte, rawKeyLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return string(buf), nil
}
