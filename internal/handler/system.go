package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/service"
	"github.com/conduitdb/conduit/internal/store"
)

// SystemHandler manages the connector's own accounts and credentials: users
// and API keys. All of its routes require the admin scope.
type SystemHandler struct {
	store *store.Store
	keys  *service.KeyService
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(st *store.Store, keys *service.KeyService) *SystemHandler {
	return &SystemHandler{store: st, keys: keys}
}

// ---------------------------------------------------------------------------
// User management
// ---------------------------------------------------------------------------

// ListUsers returns all user accounts, paginated.
// GET /api/v1/system/user
func (h *SystemHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)

	users, err := h.store.ListUsers(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: users,
		Meta: &model.ResponseMeta{
			Count:  len(users),
			Limit:  limit,
			Offset: offset,
		},
	})
}

// createUserRequest is the expected payload for the CreateUser endpoint.
type createUserRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Scopes   []string `json:"scopes"`
}

// CreateUser creates a new user account. The password is bcrypt-hashed before
// storage and never returned.
// POST /api/v1/system/user
func (h *SystemHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	for _, scope := range req.Scopes {
		if !model.ValidScope(scope) {
			writeError(w, http.StatusBadRequest, "Unknown scope: "+scope)
			return
		}
	}

	if existing, err := h.store.GetUserByUsername(r.Context(), req.Username); err == nil && existing != nil {
		writeError(w, http.StatusConflict, "User already exists: "+req.Username)
		return
	}

	hash, err := service.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password: "+err.Error())
		return
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
		Scopes:       model.ScopeList(req.Scopes),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// GetUser returns a single user by username.
// GET /api/v1/system/user/{username}
func (h *SystemHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := h.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found: "+username)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get user: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// updateUserRequest is the expected payload for the UpdateUser endpoint.
// Pointer fields distinguish "absent" from zero values.
type updateUserRequest struct {
	Email    *string   `json:"email"`
	Password *string   `json:"password"`
	IsActive *bool     `json:"is_active"`
	Scopes   *[]string `json:"scopes"`
}

// UpdateUser modifies an existing user account. Deactivating a user takes
// effect immediately for token-authenticated requests.
// PUT /api/v1/system/user/{username}
func (h *SystemHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	existing, err := h.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found: "+username)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get user: "+err.Error())
		return
	}

	var req updateUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email != nil {
		existing.Email = *req.Email
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}
		hash, err := service.HashPassword(*req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to hash password: "+err.Error())
			return
		}
		existing.PasswordHash = hash
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if req.Scopes != nil {
		for _, scope := range *req.Scopes {
			if !model.ValidScope(scope) {
				writeError(w, http.StatusBadRequest, "Unknown scope: "+scope)
				return
			}
		}
		existing.Scopes = model.ScopeList(*req.Scopes)
	}

	if err := h.store.UpdateUser(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update user: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// DeleteUser removes a user account. Outstanding tokens for the user stop
// resolving immediately.
// DELETE /api/v1/system/user/{username}
func (h *SystemHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.store.DeleteUser(r.Context(), username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found: "+username)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete user: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "User '" + username + "' deleted",
	})
}

// ---------------------------------------------------------------------------
// API key management
// ---------------------------------------------------------------------------

// createKeyRequest is the expected payload for the CreateAPIKey endpoint.
type createKeyRequest struct {
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	TTLDays   int      `json:"ttl_days"`
	RateLimit int      `json:"rate_limit"`
}

// createKeyResponse carries the one-time plaintext key alongside the stored
// record. The plaintext is not recoverable after this response.
type createKeyResponse struct {
	Key    string        `json:"key"`
	APIKey *model.APIKey `json:"api_key"`
}

// CreateAPIKey issues a new API key. The plaintext key appears only in this
// response; the server stores only its hash.
// POST /api/v1/system/api-key
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "Client ID is required")
		return
	}
	for _, scope := range req.Scopes {
		if !model.ValidScope(scope) {
			writeError(w, http.StatusBadRequest, "Unknown scope: "+scope)
			return
		}
	}
	if req.RateLimit < 0 {
		writeError(w, http.StatusBadRequest, "Rate limit must be non-negative")
		return
	}

	rawKey, key, err := h.keys.Issue(r.Context(), req.ClientID, model.ScopeList(req.Scopes), req.TTLDays, req.RateLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createKeyResponse{
		Key:    rawKey,
		APIKey: key,
	})
}

// ListAPIKeys returns stored API key records, optionally filtered by client.
// Hashes are never included.
// GET /api/v1/system/api-key
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	clientID := queryString(r, "client_id")

	keys, err := h.keys.List(r.Context(), clientID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta: &model.ResponseMeta{
			Count:  len(keys),
			Limit:  limit,
			Offset: offset,
		},
	})
}

// RevokeAPIKey deactivates an API key by its public identifier. Revoking an
// already-revoked key succeeds.
// DELETE /api/v1/system/api-key/{keyId}
func (h *SystemHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyId")

	if err := h.keys.Revoke(r.Context(), keyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found: "+keyID)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key '" + keyID + "' revoked",
	})
}

// rateLimitRequest is the expected payload for the UpdateAPIKeyRateLimit
// endpoint.
type rateLimitRequest struct {
	RateLimit int `json:"rate_limit"`
}

// UpdateAPIKeyRateLimit changes the per-key request budget.
// PUT /api/v1/system/api-key/{keyId}/rate-limit
func (h *SystemHandler) UpdateAPIKeyRateLimit(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyId")

	var req rateLimitRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.RateLimit < 0 {
		writeError(w, http.StatusBadRequest, "Rate limit must be non-negative")
		return
	}

	if err := h.keys.UpdateRateLimit(r.Context(), keyID, req.RateLimit); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found: "+keyID)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update rate limit: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"key_id":     keyID,
		"rate_limit": req.RateLimit,
	})
}
