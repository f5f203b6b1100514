package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/conduitdb/conduit/internal/model"
)

// Store persists users, API keys, and query history. It runs on SQLite for
// zero-config deployments and MySQL for production, behind one schema.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore opens the persistence store. Driver is "sqlite" or "mysql".
// For sqlite, dsn is a data directory (empty string for in-memory). For
// mysql, dsn is a go-sql-driver DSN; parseTime is required and appended
// if missing.
func NewStore(driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = ":memory:?_journal_mode=WAL"
		} else {
			if err := os.MkdirAll(dsn, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(dsn, "conduit.db") + "?_journal_mode=WAL&_busy_timeout=5000"
		}
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("mysql driver requires a DSN")
		}
		dsn = ensureParseTime(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store database: %w", err)
	}
	return s, nil
}

func ensureParseTime(dsn string) string {
	for i := len(dsn) - 1; i >= 0; i-- {
		if dsn[i] == '?' {
			return dsn + "&parseTime=true"
		}
		if dsn[i] == '/' {
			break
		}
	}
	return dsn + "?parseTime=true"
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// apiKeyRow maps 1:1 to the api_keys table. The scopes column holds the
// JSON-encoded model.ScopeList.
type apiKeyRow struct {
	ID        int64      `db:"id"`
	KeyID     string     `db:"key_id"`
	KeyHash   string     `db:"key_hash"`
	ClientID  string     `db:"client_id"`
	Scopes    string     `db:"scopes"`
	CreatedAt time.Time  `db:"created_at"`
	ExpiresAt *time.Time `db:"expires_at"`
	IsActive  bool       `db:"is_active"`
	RateLimit int        `db:"rate_limit"`
	LastUsed  *time.Time `db:"last_used"`
}

func apiKeyRowFromModel(k *model.APIKey) (apiKeyRow, error) {
	scopes, err := model.EncodeScopesJSON(k.Scopes)
	if err != nil {
		return apiKeyRow{}, err
	}
	return apiKeyRow{
		ID:        k.ID,
		KeyID:     k.KeyID,
		KeyHash:   k.KeyHash,
		ClientID:  k.ClientID,
		Scopes:    scopes,
		CreatedAt: k.CreatedAt,
		ExpiresAt: k.ExpiresAt,
		IsActive:  k.IsActive,
		RateLimit: k.RateLimit,
		LastUsed:  k.LastUsed,
	}, nil
}

func (r apiKeyRow) toModel() (model.APIKey, error) {
	scopes, err := model.DecodeScopesJSON(r.Scopes)
	if err != nil {
		return model.APIKey{}, err
	}
	return model.APIKey{
		ID:        r.ID,
		KeyID:     r.KeyID,
		KeyHash:   r.KeyHash,
		ClientID:  r.ClientID,
		Scopes:    scopes,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		IsActive:  r.IsActive,
		RateLimit: r.RateLimit,
		LastUsed:  r.LastUsed,
	}, nil
}

// CreateAPIKey inserts a new API key record. KeyID and KeyHash must already
// be set by the caller. The ID and CreatedAt fields are populated after a
// successful insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	row, err := apiKeyRowFromModel(key)
	if err != nil {
		return err
	}

	const q = `INSERT INTO api_keys
		(key_id, key_hash, client_id, scopes, created_at, expires_at, is_active, rate_limit)
		VALUES
		(:key_id, :key_hash, :client_id, :scopes, :created_at, :expires_at, :is_active, :rate_limit)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get api key id: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash. The lookup is an
// indexed equality comparison, never a linear scan over stored hashes.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM api_keys WHERE key_hash = ?", hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	key, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// GetAPIKeyByKeyID looks up an API key by its public key ID.
func (s *Store) GetAPIKeyByKeyID(ctx context.Context, keyID string) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM api_keys WHERE key_id = ?", keyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by key id: %w", err)
	}
	key, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ListAPIKeys returns API keys, optionally filtered by client ID, with
// offset/limit pagination. Row order follows creation time but callers must
// not depend on it.
func (s *Store) ListAPIKeys(ctx context.Context, clientID string, offset, limit int) ([]model.APIKey, error) {
	var rows []apiKeyRow
	var err error
	if clientID != "" {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM api_keys WHERE client_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
			clientID, limit, offset)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM api_keys ORDER BY created_at DESC LIMIT ? OFFSET ?", limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	keys := make([]model.APIKey, 0, len(rows))
	for _, r := range rows {
		k, err := r.toModel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// RevokeAPIKey marks an API key as inactive by its public key ID. Revoking
// an already-revoked key is a successful no-op.
func (s *Store) RevokeAPIKey(ctx context.Context, keyID string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = ? WHERE key_id = ?", false, keyID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n == 0 {
		// MySQL reports zero affected rows for no-op updates, so distinguish
		// "already revoked" from "unknown key id" with an existence check.
		if _, err := s.GetAPIKeyByKeyID(ctx, keyID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAPIKeyRateLimit sets the per-window request quota for an API key.
func (s *Store) UpdateAPIKeyRateLimit(ctx context.Context, keyID string, rateLimit int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET rate_limit = ? WHERE key_id = ?", rateLimit, keyID)
	if err != nil {
		return fmt.Errorf("update api key rate limit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key rate limit rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetAPIKeyByKeyID(ctx, keyID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAPIKeyLastUsed sets the last_used timestamp for an API key. Last
// writer wins; the field is a usage hint, not a security control.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key last used rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// userRow maps 1:1 to the users table. The scopes column holds the
// comma-separated model.ScopeList.
type userRow struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	IsActive     bool      `db:"is_active"`
	Scopes       string    `db:"scopes"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func userRowFromModel(u *model.User) userRow {
	return userRow{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		Scopes:       model.EncodeScopesCSV(u.Scopes),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRow) toModel() model.User {
	return model.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		Scopes:       model.DecodeScopesCSV(r.Scopes),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// CreateUser inserts a new user account. The ID, CreatedAt, and UpdatedAt
// fields are populated after a successful insert.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	row := userRowFromModel(user)

	const q = `INSERT INTO users
		(username, email, password_hash, is_active, scopes, created_at, updated_at)
		VALUES
		(:username, :email, :password_hash, :is_active, :scopes, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get user id: %w", err)
	}
	user.ID = id
	return nil
}

// GetUserByUsername returns a user by their unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM users WHERE username = ?", username); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	user := row.toModel()
	return &user, nil
}

// ListUsers returns all user accounts with offset/limit pagination.
func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]model.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM users ORDER BY username LIMIT ? OFFSET ?", limit, offset); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]model.User, len(rows))
	for i, r := range rows {
		users[i] = r.toModel()
	}
	return users, nil
}

// UpdateUser updates an existing user account. The UpdatedAt field is
// refreshed automatically.
func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	row := userRowFromModel(user)

	const q = `UPDATE users SET
		username = :username, email = :email, password_hash = :password_hash,
		is_active = :is_active, scopes = :scopes, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user account by username. Unlike API keys, users are
// hard-deleted.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Query history
// ---------------------------------------------------------------------------

type queryHistoryRow struct {
	ID            int64     `db:"id"`
	Username      string    `db:"username"`
	ConnectionID  string    `db:"connection_id"`
	Query         string    `db:"query"`
	ExecutionTime float64   `db:"execution_time"`
	RowCount      int       `db:"row_count"`
	Status        string    `db:"status"`
	ErrorMessage  string    `db:"error_message"`
	ExecutedAt    time.Time `db:"executed_at"`
}

func (r queryHistoryRow) toModel() model.QueryHistory {
	return model.QueryHistory{
		ID:            r.ID,
		Username:      r.Username,
		ConnectionID:  r.ConnectionID,
		Query:         r.Query,
		ExecutionTime: r.ExecutionTime,
		RowCount:      r.RowCount,
		Status:        r.Status,
		ErrorMessage:  r.ErrorMessage,
		ExecutedAt:    r.ExecutedAt,
	}
}

// InsertQueryHistory records one executed query. The ID and ExecutedAt
// fields are populated after a successful insert.
func (s *Store) InsertQueryHistory(ctx context.Context, h *model.QueryHistory) error {
	if h.ExecutedAt.IsZero() {
		h.ExecutedAt = time.Now().UTC()
	}
	if h.Status == "" {
		h.Status = model.QueryStatusSuccess
	}

	row := queryHistoryRow{
		Username:      h.Username,
		ConnectionID:  h.ConnectionID,
		Query:         h.Query,
		ExecutionTime: h.ExecutionTime,
		RowCount:      h.RowCount,
		Status:        h.Status,
		ErrorMessage:  h.ErrorMessage,
		ExecutedAt:    h.ExecutedAt,
	}

	const q = `INSERT INTO query_history
		(username, connection_id, query, execution_time, row_count, status, error_message, executed_at)
		VALUES
		(:username, :connection_id, :query, :execution_time, :row_count, :status, :error_message, :executed_at)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert query history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get query history id: %w", err)
	}
	h.ID = id
	return nil
}

// ListQueryHistory returns history records, optionally filtered by username,
// newest first.
func (s *Store) ListQueryHistory(ctx context.Context, username string, offset, limit int) ([]model.QueryHistory, error) {
	var rows []queryHistoryRow
	var err error
	if username != "" {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM query_history WHERE username = ? ORDER BY executed_at DESC, id DESC LIMIT ? OFFSET ?",
			username, limit, offset)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM query_history ORDER BY executed_at DESC, id DESC LIMIT ? OFFSET ?", limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}

	records := make([]model.QueryHistory, len(rows))
	for i, r := range rows {
		records[i] = r.toModel()
	}
	return records, nil
}
