package store

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	var migrations []string
	if s.driver == "mysql" {
		migrations = mysqlMigrations
	} else {
		migrations = sqliteMigrations
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		scopes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key_id TEXT UNIQUE NOT NULL,
		key_hash TEXT UNIQUE NOT NULL,
		client_id TEXT NOT NULL,
		scopes TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME,
		is_active INTEGER NOT NULL DEFAULT 1,
		rate_limit INTEGER NOT NULL DEFAULT 1000,
		last_used DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS query_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		connection_id TEXT NOT NULL DEFAULT '',
		query TEXT NOT NULL,
		execution_time REAL NOT NULL DEFAULT 0,
		row_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'success',
		error_message TEXT NOT NULL DEFAULT '',
		executed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_client ON api_keys(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_query_history_user ON query_history(username)`,
}

var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		email VARCHAR(100) NOT NULL DEFAULT '',
		password_hash VARCHAR(128) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		scopes VARCHAR(500) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		key_id VARCHAR(16) UNIQUE NOT NULL,
		key_hash VARCHAR(128) UNIQUE NOT NULL,
		client_id VARCHAR(100) NOT NULL,
		scopes TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		rate_limit INT NOT NULL DEFAULT 1000,
		last_used DATETIME NULL,
		INDEX idx_api_keys_client (client_id)
	)`,

	`CREATE TABLE IF NOT EXISTS query_history (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL,
		connection_id VARCHAR(100) NOT NULL DEFAULT '',
		query TEXT NOT NULL,
		execution_time DOUBLE NOT NULL DEFAULT 0,
		row_count INT NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'success',
		error_message TEXT NOT NULL,
		executed_at DATETIME NOT NULL,
		INDEX idx_query_history_user (username)
	)`,
}
