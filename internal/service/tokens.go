package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/store"
)

const tokenIssuer = "conduit"

// dummyHash is compared against when a username lookup misses, so that
// the authentication path costs one bcrypt comparison whether or not the
// user exists.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// TokenClaims is the verified content of a bearer token: a subject, the
// scope snapshot taken at issuance, and the absolute expiry.
type TokenClaims struct {
	Subject   string
	Scopes    model.ScopeList
	ExpiresAt time.Time
}

// TokenService authenticates users against their stored bcrypt hashes and
// issues/verifies HS256 bearer tokens. Tokens are stateless: validity is
// signature plus expiry, with no server-side revocation list.
type TokenService struct {
	store      *store.Store
	secret     []byte
	defaultTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewTokenService creates a TokenService. secret is the server-held HS256
// signing key; defaultTTL is applied when IssueToken is called without an
// explicit lifetime.
func NewTokenService(st *store.Store, secret string, defaultTTL time.Duration, logger *slog.Logger) *TokenService {
	return &TokenService{
		store:      st,
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Authenticate verifies a username/password pair. Unknown user, inactive
// account, and wrong password all reject uniformly to prevent username
// enumeration.
func (s *TokenService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("user lookup failed", "error", err)
		}
		// Burn a comparison so the miss costs the same as a mismatch.
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("rejected password authentication", "username", username)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Warn("rejected inactive user authentication", "username", username)
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// IssueToken creates a signed bearer token for the user. The scope set is a
// snapshot: later changes to the user's scopes do not affect tokens already
// issued. ttl <= 0 applies the configured default.
func (s *TokenService) IssueToken(user *model.User, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.now()
	claims := tokenClaims{
		Scopes: user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken checks a token's signature and expiry and extracts its claims.
// The signing algorithm is pinned to HMAC; tokens asserting any other method
// are rejected regardless of their content. A token without a subject is
// malformed even when the signature is valid.
func (s *TokenService) VerifyToken(tokenStr string) (*TokenClaims, error) {
	claims := &tokenClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !token.Valid {
		return nil, ErrInvalidCredentials
	}

	if claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	scopes := claims.Scopes
	if scopes == nil {
		scopes = model.ScopeList{}
	}

	return &TokenClaims{
		Subject:   claims.Subject,
		Scopes:    scopes,
		ExpiresAt: expiresAt,
	}, nil
}

// ResolvePrincipal looks up the user a token asserts. The token's scopes
// stay as issued, but the user's current active status still gates use:
// deactivating a user invalidates their outstanding tokens here even though
// signature and expiry pass.
func (s *TokenService) ResolvePrincipal(ctx context.Context, claims *TokenClaims) (*model.User, error) {
	user, err := s.store.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("principal lookup failed", "error", err)
		}
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Warn("rejected token for deactivated user", "username", user.Username)
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// tokenClaims is the wire form of the claim set.
type tokenClaims struct {
	Scopes model.ScopeList `json:"scopes"`
	jwt.RegisteredClaims
}
