// Package sqlite implements the chat and banking stores on an embedded SQLite
// database (modernc.org/sqlite, no cgo). Documents are kept as JSON next to
// the columns needed for lookups, so the stored shape matches the document
// database backends.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/logging"

	_ "modernc.org/sqlite" // SQLite driver
)

// tsLayout is fixed width so that text comparison orders by time.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options configures Open.
type Options struct {
	Logger      logging.Logger
	BusyTimeout time.Duration
}

// Store implements core.ChatStore and banking.Store.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(ctx context.Context, path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{BusyTimeout: 5 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}

	dsn := path
	if path != MemoryPath {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
			path, opts.BusyTimeout.Milliseconds())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, logger: logging.OrNoOp(opts.Logger)}
	s.logger.Info("store.sqlite.opened", "path", path, "schema_version", currentSchemaVersion)
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryDocs[T any](ctx context.Context, q queryer, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func getDoc[T any](ctx context.Context, q queryer, what, query string, args ...any) (*T, error) {
	var raw string
	err := q.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return &v, nil
}

func encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

// ListSessions implements core.ChatStore.
func (s *Store) ListSessions(ctx context.Context, tenantID, userID string) ([]core.Session, error) {
	return queryDocs[core.Session](ctx, s.db,
		`SELECT doc FROM sessions WHERE tenant_id = ? AND user_id = ? ORDER BY rowid`, tenantID, userID)
}

// GetSession implements core.ChatStore.
func (s *Store) GetSession(ctx context.Context, tenantID, userID, sessionID string) (*core.Session, error) {
	return getDoc[core.Session](ctx, s.db, "session "+sessionID,
		`SELECT doc FROM sessions WHERE tenant_id = ? AND user_id = ? AND session_id = ?`, tenantID, userID, sessionID)
}

// InsertSession implements core.ChatStore.
func (s *Store) InsertSession(ctx context.Context, session core.Session) (*core.Session, error) {
	doc, err := encode(session)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (tenant_id, user_id, session_id, doc) VALUES (?, ?, ?, ?)`,
		session.TenantID, session.UserID, session.SessionID, doc); err != nil {
		return nil, fmt.Errorf("insert session %s: %w", session.SessionID, err)
	}
	return &session, nil
}

// UpdateSession implements core.ChatStore.
func (s *Store) UpdateSession(ctx context.Context, session core.Session) (*core.Session, error) {
	if err := updateSession(ctx, s.db, session); err != nil {
		return nil, err
	}
	return &session, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateSession(ctx context.Context, e execer, session core.Session) error {
	doc, err := encode(session)
	if err != nil {
		return err
	}
	res, err := e.ExecContext(ctx,
		`UPDATE sessions SET doc = ? WHERE tenant_id = ? AND user_id = ? AND session_id = ?`,
		doc, session.TenantID, session.UserID, session.SessionID)
	if err != nil {
		return fmt.Errorf("update session %s: %w", session.SessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", session.SessionID, core.ErrNotFound)
	}
	return nil
}

// DeleteSession implements core.ChatStore.
func (s *Store) DeleteSession(ctx context.Context, tenantID, userID, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE tenant_id = ? AND user_id = ? AND session_id = ?`, tenantID, userID, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	for _, table := range []string{"messages", "debug_logs"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE tenant_id = ? AND user_id = ? AND session_id = ?`, tenantID, userID, sessionID); err != nil {
			return fmt.Errorf("delete %s of session %s: %w", table, sessionID, err)
		}
	}
	return tx.Commit()
}

// ListMessages implements core.ChatStore.
func (s *Store) ListMessages(ctx context.Context, tenantID, userID, sessionID string) ([]core.Message, error) {
	return queryDocs[core.Message](ctx, s.db,
		`SELECT doc FROM messages WHERE tenant_id = ? AND user_id = ? AND session_id = ? ORDER BY ts, rowid`,
		tenantID, userID, sessionID)
}

// UpsertSessionBatch implements core.ChatStore in a single transaction.
func (s *Store) UpsertSessionBatch(ctx context.Context, messages []core.Message, logs []core.DebugLog, session core.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range messages {
		if m.SessionID != session.SessionID {
			return fmt.Errorf("message %s belongs to session %s, not %s", m.ID, m.SessionID, session.SessionID)
		}
		doc, err := encode(m)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (tenant_id, user_id, session_id, id, ts, doc) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, user_id, session_id, id) DO UPDATE SET ts = excluded.ts, doc = excluded.doc`,
			m.TenantID, m.UserID, m.SessionID, m.ID, ts(m.TimeStamp), doc); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
	}
	for _, l := range logs {
		doc, err := encode(l)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO debug_logs (tenant_id, user_id, session_id, id, doc) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, user_id, session_id, id) DO UPDATE SET doc = excluded.doc`,
			l.TenantID, l.UserID, l.SessionID, l.ID, doc); err != nil {
			return fmt.Errorf("upsert debug log %s: %w", l.ID, err)
		}
	}
	if err := updateSession(ctx, tx, session); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateMessageRating implements core.ChatStore.
func (s *Store) UpdateMessageRating(ctx context.Context, tenantID, userID, sessionID, messageID string, rating *bool) (*core.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	msg, err := getDoc[core.Message](ctx, tx, "message "+messageID,
		`SELECT doc FROM messages WHERE tenant_id = ? AND user_id = ? AND session_id = ? AND id = ?`,
		tenantID, userID, sessionID, messageID)
	if err != nil {
		return nil, err
	}
	msg.Rating = rating
	doc, err := encode(msg)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET doc = ? WHERE tenant_id = ? AND user_id = ? AND session_id = ? AND id = ?`,
		doc, tenantID, userID, sessionID, messageID); err != nil {
		return nil, fmt.Errorf("rate message %s: %w", messageID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetDebugLog implements core.ChatStore.
func (s *Store) GetDebugLog(ctx context.Context, tenantID, userID, sessionID, debugLogID string) (*core.DebugLog, error) {
	return getDoc[core.DebugLog](ctx, s.db, "debug log "+debugLogID,
		`SELECT doc FROM debug_logs WHERE tenant_id = ? AND user_id = ? AND session_id = ? AND id = ?`,
		tenantID, userID, sessionID, debugLogID)
}
