package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/service"
	"github.com/conduitdb/conduit/internal/store"
)

func testServices(t *testing.T) (*service.KeyService, *service.TokenService, *store.Store) {
	t.Helper()
	st, err := store.NewStore("sqlite", "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys := service.NewKeyService(st, logger)
	tokens := service.NewTokenService(st, "0123456789abcdef0123456789abcdef", 30*time.Minute, logger)
	return keys, tokens, st
}

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Authenticate middleware tests
// ---------------------------------------------------------------------------

func TestAuthenticateWithAPIKey(t *testing.T) {
	keys, tokens, _ := testServices(t)
	rawKey, issued, err := keys.Issue(context.Background(), "reporting", model.ScopeList{model.ScopeRead}, 0, 60)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var got *Principal
	handler := Authenticate(keys, tokens, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	req.Header.Set("X-API-Key", rawKey)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got == nil {
		t.Fatal("expected principal in context")
	}
	if got.Source != SourceAPIKey {
		t.Errorf("expected source %q, got %q", SourceAPIKey, got.Source)
	}
	if got.KeyID != issued.KeyID {
		t.Errorf("expected key id %q, got %q", issued.KeyID, got.KeyID)
	}
	if !got.Scopes.Contains(model.ScopeRead) {
		t.Errorf("expected read scope, got %v", got.Scopes)
	}
}

func TestAuthenticateAPIKeyDisabled(t *testing.T) {
	keys, tokens, _ := testServices(t)
	rawKey, _, err := keys.Issue(context.Background(), "reporting", model.ScopeList{model.ScopeRead}, 0, 60)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	handler := Authenticate(keys, tokens, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called when API keys are disabled")
	}))

	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	req.Header.Set("X-API-Key", rawKey)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestAuthenticateWithBearerToken(t *testing.T) {
	keys, tokens, st := testServices(t)

	hash, err := service.HashPassword("sw0rdfish-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &model.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		IsActive:     true,
		Scopes:       model.ScopeList{model.ScopeRead, model.ScopeWrite},
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, err := tokens.IssueToken(user, 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var got *Principal
	handler := Authenticate(keys, tokens, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got == nil {
		t.Fatal("expected principal in context")
	}
	if got.Source != SourceToken {
		t.Errorf("expected source %q, got %q", SourceToken, got.Source)
	}
	if got.Username != "alice" {
		t.Errorf("expected username alice, got %q", got.Username)
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	keys, tokens, _ := testServices(t)

	handler := Authenticate(keys, tokens, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called")
	}))

	for _, tc := range []struct {
		name   string
		header string
		value  string
	}{
		{"bogus api key", "X-API-Key", "not-a-real-key"},
		{"bogus bearer", "Authorization", "Bearer not.a.token"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/history", nil)
			req.Header.Set(tc.header, tc.value)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rr.Code)
			}
		})
	}
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	keys, tokens, _ := testServices(t)

	handler := Authenticate(keys, tokens, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("expected WWW-Authenticate challenge, got %q", rr.Header().Get("WWW-Authenticate"))
	}
}

// ---------------------------------------------------------------------------
// RequireScopes middleware tests
// ---------------------------------------------------------------------------

func scopedRequest(scopes ...string) *http.Request {
	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	ctx := context.WithValue(req.Context(), AuthPrincipalKey, &Principal{
		Source: SourceToken,
		Scopes: model.ScopeList(scopes),
	})
	return req.WithContext(ctx)
}

func TestRequireScopesAllowsSufficient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := RequireScopes(logger, model.ScopeRead)(inner)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, scopedRequest(model.ScopeRead, model.ScopeWrite))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRequireScopesBlocksMissing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called without the required scope")
	})

	handler := RequireScopes(logger, model.ScopeAdmin)(inner)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, scopedRequest(model.ScopeRead, model.ScopeWrite))

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
	// Client must not learn which scope was missing.
	if body := rr.Body.String(); body != `{"error":{"code":403,"message":"Insufficient permissions"}}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestRequireScopesEmptyRequirementPasses(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := RequireScopes(logger)(inner)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, scopedRequest())

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRequireScopesBlocksUnauthenticated(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called for unauthenticated")
	})

	handler := RequireScopes(logger, model.ScopeRead)(inner)

	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// GetPrincipal tests
// ---------------------------------------------------------------------------

func TestGetPrincipalWithValue(t *testing.T) {
	expected := &Principal{Source: SourceToken, Username: "alice", Scopes: model.ScopeList{model.ScopeAdmin}}
	ctx := context.WithValue(context.Background(), AuthPrincipalKey, expected)

	got := GetPrincipal(ctx)
	if got == nil {
		t.Fatal("expected non-nil principal")
	}
	if got.Username != "alice" {
		t.Errorf("expected username alice, got %q", got.Username)
	}
	if !got.Scopes.Contains(model.ScopeAdmin) {
		t.Error("expected admin scope")
	}
}

func TestGetPrincipalWithoutValue(t *testing.T) {
	got := GetPrincipal(context.Background())
	if got != nil {
		t.Error("expected nil principal from bare context")
	}
}
