// Package chat implements the chat session service behind the HTTP API:
// session management, completions through the agent group chat, ratings,
// debug logs and banking document seeding.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/groupchat"
	"github.com/hupe1980/bankcopilot/internal/tokens"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/model"
)

// ErrInvalidArgument is returned when a required argument is missing or malformed.
var ErrInvalidArgument = errors.New("invalid argument")

// Runner runs one group chat over a session history.
type Runner interface {
	Run(ctx context.Context, history []core.Message, prompt core.Message) (groupchat.Result, error)
}

// Options configures a Service.
type Options struct {
	Logger          logging.Logger
	SummarizePrompt string
	Tokens          *tokens.Counter
}

// Service serves chat sessions for tenant users.
type Service struct {
	store           core.ChatStore
	bank            *banking.Service
	runner          Runner
	llm             model.Model
	logger          logging.Logger
	summarizePrompt string
	tokens          *tokens.Counter
}

// NewService creates a chat service. llm is used for session name summaries.
func NewService(store core.ChatStore, bank *banking.Service, runner Runner, llm model.Model, optFns ...func(o *Options)) *Service {
	opts := Options{SummarizePrompt: defaultSummarizePrompt}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tokens == nil {
		opts.Tokens = tokens.NewCounter()
	}

	return &Service{
		store:           store,
		bank:            bank,
		runner:          runner,
		llm:             llm,
		logger:          logging.OrNoOp(opts.Logger),
		summarizePrompt: opts.SummarizePrompt,
		tokens:          opts.Tokens,
	}
}

// Banking returns the banking service used by the agents.
func (s *Service) Banking() *banking.Service { return s.bank }

func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidArgument, pairs[i])
		}
	}
	return nil
}

// GetAllChatSessions returns every session of a user.
func (s *Service) GetAllChatSessions(ctx context.Context, tenantID, userID string) ([]core.Session, error) {
	if err := required("tenantId", tenantID, "userId", userID); err != nil {
		return nil, err
	}
	return s.store.ListSessions(ctx, tenantID, userID)
}

// GetChatSessionMessages returns the messages of a session, oldest first.
func (s *Service) GetChatSessionMessages(ctx context.Context, tenantID, userID, sessionID string) ([]core.Message, error) {
	if err := required("tenantId", tenantID, "userId", userID, "sessionId", sessionID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, tenantID, userID, sessionID)
}

// CreateNewChatSession creates an empty session named "New Chat".
func (s *Service) CreateNewChatSession(ctx context.Context, tenantID, userID string) (*core.Session, error) {
	if err := required("tenantId", tenantID, "userId", userID); err != nil {
		return nil, err
	}
	session, err := s.store.InsertSession(ctx, core.NewSession(tenantID, userID))
	if err != nil {
		return nil, err
	}
	s.logger.Info("chat.session.created", "tenant_id", tenantID, "user_id", userID, "session_id", session.ID)
	return session, nil
}

// RenameChatSession sets the display name of a session.
func (s *Service) RenameChatSession(ctx context.Context, tenantID, userID, sessionID, name string) (*core.Session, error) {
	if err := required("sessionId", sessionID, "newChatSessionName", name); err != nil {
		return nil, err
	}
	session, err := s.store.GetSession(ctx, tenantID, userID, sessionID)
	if err != nil {
		return nil, err
	}
	session.Name = name
	return s.store.UpdateSession(ctx, *session)
}

// DeleteChatSession removes a session with its messages and debug logs.
func (s *Service) DeleteChatSession(ctx context.Context, tenantID, userID, sessionID string) error {
	if err := required("sessionId", sessionID); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, tenantID, userID, sessionID); err != nil {
		return err
	}
	s.logger.Info("chat.session.deleted", "tenant_id", tenantID, "user_id", userID, "session_id", sessionID)
	return nil
}

// GetChatCompletion runs the agent group chat for prompt and persists the
// user message, the agent messages and their debug logs in one batch.
//
// The returned slice starts with the user message. Failures never surface as
// errors: a single message with sender and role Error is returned instead.
func (s *Service) GetChatCompletion(ctx context.Context, tenantID, userID, sessionID, prompt string) []core.Message {
	start := time.Now()
	logger := s.sessionLogger(tenantID, userID, sessionID)

	msgs, res, err := s.complete(ctx, tenantID, userID, sessionID, prompt)
	if sl, ok := logger.(*logging.StructuredLogger); ok {
		sl.LogTurn(res.ActiveAgent, res.Iterations, time.Since(start), err)
	}
	if err != nil {
		text := fmt.Sprintf("Error getting completion in session %s for user prompt [%s].", sessionID, prompt)
		logger.Error("chat.completion.error", "error", err.Error())
		return []core.Message{core.NewMessage(tenantID, userID, sessionID, core.SenderError, core.SenderError, text)}
	}
	return msgs
}

func (s *Service) complete(ctx context.Context, tenantID, userID, sessionID, prompt string) ([]core.Message, groupchat.Result, error) {
	if err := required("tenantId", tenantID, "userId", userID, "sessionId", sessionID, "prompt", prompt); err != nil {
		return nil, groupchat.Result{}, err
	}

	session, err := s.store.GetSession(ctx, tenantID, userID, sessionID)
	if err != nil {
		return nil, groupchat.Result{}, fmt.Errorf("load session: %w", err)
	}
	history, err := s.store.ListMessages(ctx, tenantID, userID, sessionID)
	if err != nil {
		return nil, groupchat.Result{}, fmt.Errorf("load history: %w", err)
	}

	userMsg := core.NewMessage(tenantID, userID, sessionID, core.SenderUser, core.SenderRoleUser, prompt)
	userMsg.TokensUsed = s.tokens.Count(prompt)

	ctx = core.WithIdentity(ctx, core.Identity{TenantID: tenantID, UserID: userID, SessionID: sessionID})
	res, err := s.runner.Run(ctx, history, userMsg)
	if err != nil {
		return nil, res, fmt.Errorf("group chat: %w", err)
	}

	out := make([]core.Message, 0, len(res.Messages)+1)
	out = append(out, userMsg)
	logs := make([]core.DebugLog, 0, len(res.Messages))
	tokensUsed := userMsg.TokensUsed

	for i, msg := range res.Messages {
		msg.TenantID, msg.UserID, msg.SessionID = tenantID, userID, sessionID
		if msg.TokensUsed == 0 {
			msg.TokensUsed = s.tokens.Count(msg.Text)
		}
		var props []core.LogProperty
		if i < len(res.Logs) {
			props = res.Logs[i]
		}
		debugLog := core.NewDebugLog(msg, props)
		msg.DebugLogID = debugLog.ID

		tokensUsed += msg.TokensUsed
		logs = append(logs, debugLog)
		out = append(out, msg)
	}

	session.TokensUsed += tokensUsed
	if res.ActiveAgent != "" {
		session.ActiveAgent = res.ActiveAgent
	}
	if err := s.store.UpsertSessionBatch(ctx, out, logs, *session); err != nil {
		return nil, res, fmt.Errorf("persist completion: %w", err)
	}

	return out, res, nil
}

// SummarizeChatSessionName asks the model for a two word summary of text and
// uses it as the new session name.
func (s *Service) SummarizeChatSessionName(ctx context.Context, tenantID, userID, sessionID, text string) (string, error) {
	if err := required("sessionId", sessionID, "prompt", text); err != nil {
		return "", err
	}

	prompt := strings.NewReplacer("{text}", text).Replace(s.summarizePrompt)
	resp, err := model.Collect(ctx, s.llm, model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, prompt)},
	})
	if err != nil {
		s.logger.Error("chat.summarize.error", "session_id", sessionID, "error", err.Error())
		return "", fmt.Errorf("summarize session %s: %w", sessionID, err)
	}

	name := CleanSummary(resp.Content.Text())
	if name == "" {
		return "", fmt.Errorf("summarize session %s: empty summary", sessionID)
	}

	session, err := s.RenameChatSession(ctx, tenantID, userID, sessionID, name)
	if err != nil {
		return "", err
	}
	return session.Name, nil
}

// CleanSummary strips quotes and trailing punctuation from a model summary and
// keeps at most its first two words.
func CleanSummary(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '\'' || r == '`'
	})
	if len(fields) > 2 {
		fields = fields[:2]
	}
	for i, f := range fields {
		fields[i] = strings.TrimRightFunc(f, unicode.IsPunct)
	}
	return strings.TrimSpace(strings.Join(fields, " "))
}

// RateChatCompletion sets or, with a nil rating, clears the rating of a message.
func (s *Service) RateChatCompletion(ctx context.Context, tenantID, userID, messageID, sessionID string, rating *bool) (*core.Message, error) {
	if err := required("messageId", messageID, "sessionId", sessionID); err != nil {
		return nil, err
	}
	return s.store.UpdateMessageRating(ctx, tenantID, userID, sessionID, messageID, rating)
}

// GetChatCompletionDebugLog returns the decision trail behind one agent message.
func (s *Service) GetChatCompletionDebugLog(ctx context.Context, tenantID, userID, sessionID, debugLogID string) ([]core.LogProperty, error) {
	if err := required("sessionId", sessionID, "debugLogId", debugLogID); err != nil {
		return nil, err
	}
	debugLog, err := s.store.GetDebugLog(ctx, tenantID, userID, sessionID, debugLogID)
	if err != nil {
		return nil, err
	}
	return debugLog.PropertyBag, nil
}

// AddDocument stores a raw JSON banking document in container.
func (s *Service) AddDocument(ctx context.Context, container string, raw []byte) error {
	c, err := banking.ParseContainer(container)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := s.bank.AddDocument(ctx, c, raw); err != nil {
		s.logger.Error("chat.document.add_failed", "container", container, "error", err.Error())
		if errors.Is(err, banking.ErrInvalidDocument) {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return err
	}
	return nil
}

func (s *Service) sessionLogger(tenantID, userID, sessionID string) logging.Logger {
	if sl, ok := s.logger.(*logging.StructuredLogger); ok {
		return sl.WithComponent("chat").WithSession(tenantID, userID, sessionID)
	}
	return s.logger
}

const defaultSummarizePrompt = "Summarize the following text into exactly two words:\n\n{text}"
