package model

import "time"

// Query execution outcomes recorded in the history log.
const (
	QueryStatusSuccess = "success"
	QueryStatusError   = "error"
)

// QueryHistory records one query executed on behalf of a user. The connector
// subsystems write a row per request; the credential core only supplies the
// Username value.
type QueryHistory struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	ConnectionID  string    `json:"connection_id,omitempty"`
	Query         string    `json:"query"`
	ExecutionTime float64   `json:"execution_time,omitempty"` // seconds
	RowCount      int       `json:"row_count"`
	Status        string    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ExecutedAt    time.Time `json:"executed_at"`
}
