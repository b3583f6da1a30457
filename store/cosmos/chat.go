package cosmos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/hupe1980/bankcopilot/core"
)

func sessionKey(tenantID, userID, sessionID string) azcosmos.PartitionKey {
	return partitionKey(tenantID, userID, sessionID)
}

// ListSessions implements core.ChatStore.
func (s *Store) ListSessions(ctx context.Context, tenantID, userID string) ([]core.Session, error) {
	sessions, err := query[core.Session](ctx, s.chat, crossPartition,
		`SELECT * FROM c WHERE c.type = @type AND c.tenantId = @tenantId AND c.userId = @userId`,
		params("@type", core.TypeSession, "@tenantId", tenantID, "@userId", userID))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// GetSession implements core.ChatStore.
func (s *Store) GetSession(ctx context.Context, tenantID, userID, sessionID string) (*core.Session, error) {
	return read[core.Session](ctx, s.chat, sessionKey(tenantID, userID, sessionID), sessionID, "session "+sessionID)
}

// InsertSession implements core.ChatStore.
func (s *Store) InsertSession(ctx context.Context, session core.Session) (*core.Session, error) {
	raw, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	if _, err := s.chat.CreateItem(ctx, sessionKey(session.TenantID, session.UserID, session.SessionID), raw, nil); err != nil {
		return nil, wrap("insert session "+session.SessionID, err)
	}
	return &session, nil
}

// UpdateSession implements core.ChatStore.
func (s *Store) UpdateSession(ctx context.Context, session core.Session) (*core.Session, error) {
	raw, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	if _, err := s.chat.ReplaceItem(ctx, sessionKey(session.TenantID, session.UserID, session.SessionID), session.ID, raw, nil); err != nil {
		return nil, wrap("session "+session.SessionID, err)
	}
	return &session, nil
}

// DeleteSession implements core.ChatStore. The documents of the session
// partition are removed in batches of at most maxBatchOperations, with the
// session document in the final batch, so a failed run can be retried.
func (s *Store) DeleteSession(ctx context.Context, tenantID, userID, sessionID string) error {
	pk := sessionKey(tenantID, userID, sessionID)
	if _, err := s.chat.ReadItem(ctx, pk, sessionID, nil); err != nil {
		return wrap("session "+sessionID, err)
	}

	type ref struct {
		ID string `json:"id"`
	}
	refs, err := query[ref](ctx, s.chat, pk, `SELECT c.id FROM c WHERE c.sessionId = @sessionId`, params("@sessionId", sessionID))
	if err != nil {
		return fmt.Errorf("list session documents: %w", err)
	}
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}

	for _, chunk := range deleteBatches(ids, sessionID, maxBatchOperations) {
		batch := s.chat.NewTransactionalBatch(pk)
		for _, id := range chunk {
			batch.DeleteItem(id, nil)
		}
		if err := s.execute(ctx, batch, "delete session "+sessionID); err != nil {
			return err
		}
	}
	return nil
}

// maxBatchOperations is the Cosmos DB limit on operations per transactional batch.
const maxBatchOperations = 100

// deleteBatches splits ids into chunks of at most size, moving sessionID to
// the very end.
func deleteBatches(ids []string, sessionID string, size int) [][]string {
	ordered := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		if id != sessionID {
			ordered = append(ordered, id)
		}
	}
	ordered = append(ordered, sessionID)

	var chunks [][]string
	for len(ordered) > size {
		chunks = append(chunks, ordered[:size:size])
		ordered = ordered[size:]
	}
	return append(chunks, ordered)
}

// ListMessages implements core.ChatStore.
func (s *Store) ListMessages(ctx context.Context, tenantID, userID, sessionID string) ([]core.Message, error) {
	msgs, err := query[core.Message](ctx, s.chat, sessionKey(tenantID, userID, sessionID),
		`SELECT * FROM c WHERE c.type = @type ORDER BY c.timeStamp`, params("@type", core.TypeMessage))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// UpsertSessionBatch implements core.ChatStore as a transactional batch.
func (s *Store) UpsertSessionBatch(ctx context.Context, messages []core.Message, logs []core.DebugLog, session core.Session) error {
	batch := s.chat.NewTransactionalBatch(sessionKey(session.TenantID, session.UserID, session.SessionID))
	for _, m := range messages {
		if m.SessionID != session.SessionID {
			return fmt.Errorf("message %s belongs to session %s, not %s", m.ID, m.SessionID, session.SessionID)
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		batch.UpsertItem(raw, nil)
	}
	for _, l := range logs {
		raw, err := json.Marshal(l)
		if err != nil {
			return err
		}
		batch.UpsertItem(raw, nil)
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	batch.ReplaceItem(session.ID, raw, nil)
	return s.execute(ctx, batch, "upsert session "+session.SessionID)
}

func (s *Store) execute(ctx context.Context, batch azcosmos.TransactionalBatch, what string) error {
	resp, err := s.chat.ExecuteTransactionalBatch(ctx, batch, nil)
	if err != nil {
		return wrap(what, err)
	}
	if !resp.Success {
		for i, op := range resp.OperationResults {
			if op.StatusCode >= 400 && op.StatusCode != 424 {
				s.logger.Error("store.cosmos.batch_failed", "operation", i, "status", op.StatusCode)
				if op.StatusCode == 404 {
					return fmt.Errorf("%s: %w", what, core.ErrNotFound)
				}
				return fmt.Errorf("%s: operation %d failed with status %d", what, i, op.StatusCode)
			}
		}
		return fmt.Errorf("%s: batch rejected", what)
	}
	return nil
}

// UpdateMessageRating implements core.ChatStore.
func (s *Store) UpdateMessageRating(ctx context.Context, tenantID, userID, sessionID, messageID string, rating *bool) (*core.Message, error) {
	ops := azcosmos.PatchOperations{}
	ops.AppendSet("/rating", rating)
	resp, err := s.chat.PatchItem(ctx, sessionKey(tenantID, userID, sessionID), messageID, ops,
		&azcosmos.ItemOptions{EnableContentResponseOnWrite: true})
	if err != nil {
		return nil, wrap("message "+messageID, err)
	}
	var msg core.Message
	if err := json.Unmarshal(resp.Value, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// GetDebugLog implements core.ChatStore.
func (s *Store) GetDebugLog(ctx context.Context, tenantID, userID, sessionID, debugLogID string) (*core.DebugLog, error) {
	return read[core.DebugLog](ctx, s.chat, sessionKey(tenantID, userID, sessionID), debugLogID, "debug log "+debugLogID)
}
