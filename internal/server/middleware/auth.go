package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// Credential sources for Principal.Source.
const (
	SourceAPIKey = "api_key"
	SourceToken  = "token"
)

// Principal represents the authenticated identity making the request,
// resolved from either an API key or a bearer token.
type Principal struct {
	Source   string          // SourceAPIKey or SourceToken
	ClientID string          // owning client, API keys only
	KeyID    string          // public key identifier, API keys only
	Username string          // token subject, tokens only
	Scopes   model.ScopeList // granted scopes
}

// Authenticate returns an HTTP middleware that validates the request's
// authentication credentials. It supports two methods:
//
//  1. API key via the X-API-Key header (when API key auth is enabled)
//  2. JWT Bearer token via the Authorization header
//
// On success, a Principal is attached to the request context. On failure,
// a 401 JSON error response is returned. The response never distinguishes
// between unknown, revoked and expired credentials.
func Authenticate(keys *service.KeyService, tokens *service.TokenService, apiKeysEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *Principal

			// Try API key first
			if apiKeysEnabled {
				if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
					key, err := keys.Verify(r.Context(), rawKey)
					if err != nil {
						writeAuthError(w, http.StatusUnauthorized, "Invalid or expired API key")
						return
					}
					principal = &Principal{
						Source:   SourceAPIKey,
						ClientID: key.ClientID,
						KeyID:    key.KeyID,
						Scopes:   key.Scopes,
					}
				}
			}

			// Try JWT Bearer token
			if principal == nil {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					token := strings.TrimPrefix(authHeader, "Bearer ")
					claims, err := tokens.VerifyToken(token)
					if err != nil {
						writeAuthError(w, http.StatusUnauthorized, "Could not validate credentials")
						return
					}
					// Scopes come from the issuance-time snapshot in the
					// token; the user's live active status still gates access.
					user, err := tokens.ResolvePrincipal(r.Context(), claims)
					if err != nil {
						writeAuthError(w, http.StatusUnauthorized, "Could not validate credentials")
						return
					}
					principal = &Principal{
						Source:   SourceToken,
						Username: user.Username,
						Scopes:   claims.Scopes,
					}
				}
			}

			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide X-API-Key header or Bearer token.")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScopes returns an HTTP middleware that enforces that the principal
// holds every listed scope. An empty requirement always passes. The missing
// scopes are logged server-side; the client only receives a generic
// forbidden response. Must be used after Authenticate in the chain.
func RequireScopes(logger *slog.Logger, required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide X-API-Key header or Bearer token.")
				return
			}

			if missing := principal.Scopes.Missing(model.ScopeList(required)); len(missing) > 0 {
				logger.Warn("insufficient scope",
					"required", required,
					"missing", missing,
					"source", principal.Source,
					"client_id", principal.ClientID,
					"username", principal.Username,
					"path", r.URL.Path,
				)
				writeAuthError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid import cycle with handler package
	w.Write([]byte(`{"error":{"code":` + httpStatusString(status) + `,"message":"` + message + `"}}`))
}

func httpStatusString(code int) string {
	switch code {
	case 401:
		return "401"
	case 403:
		return "403"
	default:
		return "500"
	}
}
