package handler

import (
	"net/http"
	"time"

	"github.com/conduitdb/conduit/internal/service"
)

// AuthHandler issues and invalidates bearer-token sessions for named users.
type AuthHandler struct {
	tokens   *service.TokenService
	tokenTTL time.Duration
}

// NewAuthHandler creates a new AuthHandler. tokenTTL is the lifetime applied
// to issued tokens.
func NewAuthHandler(tokens *service.TokenService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{tokens: tokens, tokenTTL: tokenTTL}
}

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response payload for a successful login.
type loginResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	Username    string   `json:"username"`
	Scopes      []string `json:"scopes"`
}

// Login authenticates a user by username and password and returns a signed
// bearer token carrying the user's scopes at the time of issuance.
// POST /api/v1/auth/session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.tokens.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		// Unknown user, wrong password and disabled account all produce the
		// same response.
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.tokens.IssueToken(user, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.tokenTTL.Seconds()),
		Username:    user.Username,
		Scopes:      user.Scopes,
	})
}

// Logout invalidates the current session. Tokens are stateless, so this is
// a no-op on the server side; clients should discard their token.
// DELETE /api/v1/auth/session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session invalidated",
	})
}
