package handler

import (
	"net/http"

	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/server/middleware"
	"github.com/conduitdb/conduit/internal/store"
)

// HistoryHandler serves the query history log. Records are persisted and
// listed here; query execution happens elsewhere.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(st *store.Store) *HistoryHandler {
	return &HistoryHandler{store: st}
}

// principalName returns the identity a history record is attributed to: the
// username for token principals, the client ID for API key principals.
func principalName(p *middleware.Principal) string {
	if p == nil {
		return ""
	}
	if p.Username != "" {
		return p.Username
	}
	return p.ClientID
}

// ListHistory returns the caller's query history, newest first. Admins may
// inspect another identity's history via the username query parameter.
// GET /api/v1/history
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)

	principal := middleware.GetPrincipal(r.Context())
	username := principalName(principal)
	if requested := queryString(r, "username"); requested != "" && requested != username {
		if principal == nil || !principal.Scopes.Contains(model.ScopeAdmin) {
			writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		username = requested
	}

	records, err := h.store.ListQueryHistory(r.Context(), username, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list history: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: records,
		Meta: &model.ResponseMeta{
			Count:  len(records),
			Limit:  limit,
			Offset: offset,
		},
	})
}

// recordHistoryRequest is the expected payload for the RecordHistory endpoint.
type recordHistoryRequest struct {
	ConnectionID  string  `json:"connection_id"`
	Query         string  `json:"query"`
	ExecutionTime float64 `json:"execution_time"`
	RowCount      int     `json:"row_count"`
	Status        string  `json:"status"`
	ErrorMessage  string  `json:"error_message"`
}

// RecordHistory persists a query history record attributed to the caller.
// POST /api/v1/history
func (h *HistoryHandler) RecordHistory(w http.ResponseWriter, r *http.Request) {
	var req recordHistoryRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if req.Status != "" && req.Status != model.QueryStatusSuccess && req.Status != model.QueryStatusError {
		writeError(w, http.StatusBadRequest, "Status must be 'success' or 'error'")
		return
	}

	record := &model.QueryHistory{
		Username:      principalName(middleware.GetPrincipal(r.Context())),
		ConnectionID:  req.ConnectionID,
		Query:         req.Query,
		ExecutionTime: req.ExecutionTime,
		RowCount:      req.RowCount,
		Status:        req.Status,
		ErrorMessage:  req.ErrorMessage,
	}
	if err := h.store.InsertQueryHistory(r.Context(), record); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record history: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, record)
}
