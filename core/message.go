package core

import (
	"time"

	"github.com/google/uuid"
)

// Document type discriminators stored in the "type" field of every chat document.
const (
	TypeMessage  = "Message"
	TypeSession  = "Session"
	TypeDebugLog = "DebugLog"
)

// Sender roles recorded on messages. Agent messages use RoleAssistant with the
// agent name as Sender.
const (
	SenderUser          = "User"
	SenderRoleUser      = "User"
	SenderRoleAssistant = "Assistant"
	SenderError         = "Error"
)

// DefaultSessionName is the name given to freshly created sessions.
const DefaultSessionName = "New Chat"

// Message is a single chat message persisted with its session.
type Message struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	TenantID           string    `json:"tenantId"`
	UserID             string    `json:"userId"`
	SessionID          string    `json:"sessionId"`
	TimeStamp          time.Time `json:"timeStamp"`
	Sender             string    `json:"sender"`
	SenderRole         string    `json:"senderRole"`
	Text               string    `json:"text"`
	DebugLogID         string    `json:"debugLogId,omitempty"`
	TokensUsed         int       `json:"tokensUsed,omitempty"`
	Rating             *bool     `json:"rating"`
	CompletionPromptID string    `json:"completionPromptId,omitempty"`
}

// NewMessage creates a message stamped with a fresh id and the current UTC time.
func NewMessage(tenantID, userID, sessionID, sender, senderRole, text string) Message {
	return Message{
		ID:         uuid.NewString(),
		Type:       TypeMessage,
		TenantID:   tenantID,
		UserID:     userID,
		SessionID:  sessionID,
		TimeStamp:  time.Now().UTC(),
		Sender:     sender,
		SenderRole: senderRole,
		Text:       text,
	}
}

// Session is a chat session owned by a tenant user.
type Session struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	SessionID   string `json:"sessionId"`
	TenantID    string `json:"tenantId"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	TokensUsed  int    `json:"tokensUsed"`
	ActiveAgent string `json:"activeAgent,omitempty"`
}

// NewSession creates a session named DefaultSessionName whose SessionID equals its ID.
func NewSession(tenantID, userID string) Session {
	id := uuid.NewString()
	return Session{
		ID:        id,
		Type:      TypeSession,
		SessionID: id,
		TenantID:  tenantID,
		UserID:    userID,
		Name:      DefaultSessionName,
	}
}

// LogProperty is one entry of a debug log property bag.
type LogProperty struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	TimeStamp time.Time `json:"timeStamp"`
}

// DebugLog records the orchestration decisions behind one completion message.
type DebugLog struct {
	ID          string        `json:"id"`
	MessageID   string        `json:"messageId"`
	Type        string        `json:"type"`
	SessionID   string        `json:"sessionId"`
	TenantID    string        `json:"tenantId"`
	UserID      string        `json:"userId"`
	TimeStamp   time.Time     `json:"timeStamp"`
	PropertyBag []LogProperty `json:"propertyBag"`
}

// NewDebugLog creates a debug log attached to msg.
func NewDebugLog(msg Message, props []LogProperty) DebugLog {
	return DebugLog{
		ID:          uuid.NewString(),
		MessageID:   msg.ID,
		Type:        TypeDebugLog,
		SessionID:   msg.SessionID,
		TenantID:    msg.TenantID,
		UserID:      msg.UserID,
		TimeStamp:   time.Now().UTC(),
		PropertyBag: props,
	}
}
