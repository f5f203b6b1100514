package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conduitdb/conduit/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("sqlite", "") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAPIKeyCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(24 * time.Hour)
	key := &model.APIKey{
		KeyID:     "a1b2c3d4",
		KeyHash:   "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2",
		ClientID:  "acme",
		Scopes:    model.ScopeList{"read", "write"},
		ExpiresAt: &expires,
		IsActive:  true,
		RateLimit: 1000,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if key.ID == 0 {
		t.Fatal("expected non-zero ID after create")
	}

	// Lookup by hash
	got, err := s.GetAPIKeyByHash(ctx, key.KeyHash)
	if err != nil {
		t.Fatalf("GetAPIKeyByHash: %v", err)
	}
	if got.ClientID != "acme" {
		t.Errorf("got client_id %q, want %q", got.ClientID, "acme")
	}
	if len(got.Scopes) != 2 || got.Scopes[0] != "read" || got.Scopes[1] != "write" {
		t.Errorf("got scopes %v, want [read write]", got.Scopes)
	}

	// Lookup by key ID
	got2, err := s.GetAPIKeyByKeyID(ctx, "a1b2c3d4")
	if err != nil {
		t.Fatalf("GetAPIKeyByKeyID: %v", err)
	}
	if got2.ID != key.ID {
		t.Errorf("got ID %d, want %d", got2.ID, key.ID)
	}

	// List
	keys, err := s.ListAPIKeys(ctx, "", 0, 100)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("got %d keys, want 1", len(keys))
	}

	// List with client filter
	keys, err = s.ListAPIKeys(ctx, "other", 0, 100)
	if err != nil {
		t.Fatalf("ListAPIKeys filtered: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("got %d keys for unknown client, want 0", len(keys))
	}

	// Rate limit update
	if err := s.UpdateAPIKeyRateLimit(ctx, "a1b2c3d4", 50); err != nil {
		t.Fatalf("UpdateAPIKeyRateLimit: %v", err)
	}
	got3, _ := s.GetAPIKeyByKeyID(ctx, "a1b2c3d4")
	if got3.RateLimit != 50 {
		t.Errorf("got rate limit %d, want 50", got3.RateLimit)
	}

	// Last used
	if got3.LastUsed != nil {
		t.Error("expected nil last_used before any verification")
	}
	if err := s.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed: %v", err)
	}
	got4, _ := s.GetAPIKeyByKeyID(ctx, "a1b2c3d4")
	if got4.LastUsed == nil {
		t.Error("expected last_used to be set")
	}

	// Revoke
	if err := s.RevokeAPIKey(ctx, "a1b2c3d4"); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	got5, _ := s.GetAPIKeyByKeyID(ctx, "a1b2c3d4")
	if got5.IsActive {
		t.Error("expected key to be inactive after revoke")
	}

	// Revoking again is a no-op, not an error
	if err := s.RevokeAPIKey(ctx, "a1b2c3d4"); err != nil {
		t.Errorf("second RevokeAPIKey: %v", err)
	}
}

func TestAPIKeyNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetAPIKeyByHash(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAPIKeyByHash: got %v, want ErrNotFound", err)
	}
	if err := s.RevokeAPIKey(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RevokeAPIKey: got %v, want ErrNotFound", err)
	}
	if err := s.UpdateAPIKeyRateLimit(ctx, "nope", 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateAPIKeyRateLimit: got %v, want ErrNotFound", err)
	}
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &model.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$fakehashfakehashfakehashfakehashfakehashfakehashfake",
		IsActive:     true,
		Scopes:       model.ScopeList{"read"},
	}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected non-zero ID after create")
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("got email %q, want %q", got.Email, "alice@example.com")
	}
	if len(got.Scopes) != 1 || got.Scopes[0] != "read" {
		t.Errorf("got scopes %v, want [read]", got.Scopes)
	}

	// Update
	user.Scopes = model.ScopeList{"read", "write"}
	user.IsActive = false
	if err := s.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got2, _ := s.GetUserByUsername(ctx, "alice")
	if got2.IsActive {
		t.Error("expected user to be inactive after update")
	}
	if len(got2.Scopes) != 2 {
		t.Errorf("got scopes %v, want [read write]", got2.Scopes)
	}

	// List
	users, err := s.ListUsers(ctx, 0, 100)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("got %d users, want 1", len(users))
	}

	// Hard delete
	if err := s.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: got %v, want ErrNotFound", err)
	}
	if err := s.DeleteUser(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestQueryHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, q := range []string{"SELECT 1", "SELECT 2", "SELECT 3"} {
		h := &model.QueryHistory{
			Username:      "alice",
			ConnectionID:  "primary",
			Query:         q,
			ExecutionTime: 0.01,
			RowCount:      i,
			ExecutedAt:    time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := s.InsertQueryHistory(ctx, h); err != nil {
			t.Fatalf("InsertQueryHistory: %v", err)
		}
		if h.ID == 0 {
			t.Fatal("expected non-zero ID after insert")
		}
		if h.Status != model.QueryStatusSuccess {
			t.Errorf("got status %q, want default %q", h.Status, model.QueryStatusSuccess)
		}
	}
	s.InsertQueryHistory(ctx, &model.QueryHistory{Username: "bob", Query: "SELECT 4"})

	// Newest first for the filtered user
	records, err := s.ListQueryHistory(ctx, "alice", 0, 10)
	if err != nil {
		t.Fatalf("ListQueryHistory: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Query != "SELECT 3" {
		t.Errorf("got first record %q, want newest (SELECT 3)", records[0].Query)
	}

	// Pagination
	page, err := s.ListQueryHistory(ctx, "alice", 1, 1)
	if err != nil {
		t.Fatalf("ListQueryHistory paged: %v", err)
	}
	if len(page) != 1 || page[0].Query != "SELECT 2" {
		t.Errorf("got page %v, want single SELECT 2 record", page)
	}

	// Unfiltered includes all users
	all, err := s.ListQueryHistory(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("ListQueryHistory all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d records, want 4", len(all))
	}
}
