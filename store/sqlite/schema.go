package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// currentSchemaVersion is bumped whenever a migration is appended.
const currentSchemaVersion = 1

// Every table stores the JSON document in doc next to the columns used for
// lookups and ordering.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		tenant_id  TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		doc        TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id, session_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		tenant_id  TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		id         TEXT NOT NULL,
		ts         TEXT NOT NULL,
		doc        TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id, session_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages (tenant_id, user_id, session_id, ts)`,
	`CREATE TABLE IF NOT EXISTS debug_logs (
		tenant_id  TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		id         TEXT NOT NULL,
		doc        TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id, session_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS bank_users (
		tenant_id TEXT NOT NULL,
		id        TEXT NOT NULL,
		doc       TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS bank_accounts (
		tenant_id TEXT NOT NULL,
		id        TEXT NOT NULL,
		user_id   TEXT NOT NULL,
		doc       TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bank_accounts_user ON bank_accounts (tenant_id, user_id)`,
	`CREATE TABLE IF NOT EXISTS bank_transactions (
		tenant_id  TEXT NOT NULL,
		account_id TEXT NOT NULL,
		id         TEXT NOT NULL,
		ts         TEXT NOT NULL,
		doc        TEXT NOT NULL,
		PRIMARY KEY (tenant_id, account_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bank_transactions_ts ON bank_transactions (tenant_id, account_id, ts)`,
	`CREATE TABLE IF NOT EXISTS service_requests (
		tenant_id    TEXT NOT NULL,
		id           TEXT NOT NULL,
		account_id   TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		sr_type      INTEGER NOT NULL,
		requested_on TEXT NOT NULL,
		doc          TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS offers (
		tenant_id TEXT NOT NULL,
		id        TEXT NOT NULL,
		offer_id  TEXT NOT NULL,
		doc       TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS offer_terms (
		tenant_id    TEXT NOT NULL,
		id           TEXT NOT NULL,
		account_type TEXT NOT NULL,
		doc          TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
}

// migrate brings the schema to currentSchemaVersion. It is idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	version, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if version == currentSchemaVersion {
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaV1 {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", stmt, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to reset schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var name string
	err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to inspect schema: %w", err)
	}

	var version int
	err = db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
