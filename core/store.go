package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a document does not exist.
var ErrNotFound = errors.New("not found")

// ChatStore persists sessions, messages and debug logs. Implementations must be
// safe for concurrent use. List operations return documents ordered by time.
type ChatStore interface {
	// ListSessions returns every session of a tenant user.
	ListSessions(ctx context.Context, tenantID, userID string) ([]Session, error)

	// GetSession returns a single session or ErrNotFound.
	GetSession(ctx context.Context, tenantID, userID, sessionID string) (*Session, error)

	// InsertSession stores a new session.
	InsertSession(ctx context.Context, session Session) (*Session, error)

	// UpdateSession replaces an existing session document.
	UpdateSession(ctx context.Context, session Session) (*Session, error)

	// DeleteSession removes a session together with its messages and debug logs.
	DeleteSession(ctx context.Context, tenantID, userID, sessionID string) error

	// ListMessages returns the messages of a session, oldest first.
	ListMessages(ctx context.Context, tenantID, userID, sessionID string) ([]Message, error)

	// UpsertSessionBatch atomically writes messages, debug logs and the session.
	UpsertSessionBatch(ctx context.Context, messages []Message, logs []DebugLog, session Session) error

	// UpdateMessageRating sets (or clears with nil) the rating of a message.
	UpdateMessageRating(ctx context.Context, tenantID, userID, sessionID, messageID string, rating *bool) (*Message, error)

	// GetDebugLog returns one debug log or ErrNotFound.
	GetDebugLog(ctx context.Context, tenantID, userID, sessionID, debugLogID string) (*DebugLog, error)
}
