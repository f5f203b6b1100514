package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/service"
	"github.com/conduitdb/conduit/internal/store"
)

const (
	testTokenSecret = "0123456789abcdef0123456789abcdef"
	testPassword    = "supersecretpassword"
	testTokenTTL    = 30 * time.Minute
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *store.Store
	keys    *service.KeyService
	tokens  *service.TokenService
	router  chi.Router
	history *HistoryHandler
}

// newTestEnv creates a fresh test environment with an in-memory store, the
// credential services, and a Chi router with routes mounted (no auth
// middleware; history handlers read the principal from the context directly).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewStore("sqlite", "") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys := service.NewKeyService(st, logger)
	tokens := service.NewTokenService(st, testTokenSecret, testTokenTTL, logger)

	authHandler := NewAuthHandler(tokens, testTokenTTL)
	sysHandler := NewSystemHandler(st, keys)
	histHandler := NewHistoryHandler(st)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/session", authHandler.Login)
		r.Delete("/auth/session", authHandler.Logout)

		r.Get("/history", histHandler.ListHistory)
		r.Post("/history", histHandler.RecordHistory)

		r.Route("/system", func(r chi.Router) {
			r.Get("/user", sysHandler.ListUsers)
			r.Post("/user", sysHandler.CreateUser)
			r.Get("/user/{username}", sysHandler.GetUser)
			r.Put("/user/{username}", sysHandler.UpdateUser)
			r.Delete("/user/{username}", sysHandler.DeleteUser)

			r.Get("/api-key", sysHandler.ListAPIKeys)
			r.Post("/api-key", sysHandler.CreateAPIKey)
			r.Delete("/api-key/{keyId}", sysHandler.RevokeAPIKey)
			r.Put("/api-key/{keyId}/rate-limit", sysHandler.UpdateAPIKeyRateLimit)
		})
	})

	return &testEnv{
		store:   st,
		keys:    keys,
		tokens:  tokens,
		router:  r,
		history: histHandler,
	}
}

// seedUser creates an active user account and returns it.
func (e *testEnv) seedUser(t *testing.T, username string, scopes ...string) *model.User {
	t.Helper()
	hash, err := service.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsActive:     true,
		Scopes:       model.ScopeList(scopes),
	}
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	return user
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
