package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/chat"
	"github.com/hupe1980/bankcopilot/core"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// readPrompt decodes a JSON string body such as "\"hello\"".
func readPrompt(r *http.Request) (string, error) {
	var prompt string
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&prompt); err != nil {
		return "", fmt.Errorf("%w: body must be a JSON string: %v", chat.ErrInvalidArgument, err)
	}
	return prompt, nil
}

func (h *Handlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chat.GetAllChatSessions(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []core.Session{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (h *Handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chat.CreateNewChatSession(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *Handlers) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.chat.GetChatSessionMessages(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"), r.PathValue("sessionId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []core.Message{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) handleRate(w http.ResponseWriter, r *http.Request) {
	var rating *bool
	if raw := r.URL.Query().Get("rating"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("%w: rating must be true or false", chat.ErrInvalidArgument))
			return
		}
		rating = &v
	}

	msg, err := h.chat.RateChatCompletion(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"), r.PathValue("messageId"), r.PathValue("sessionId"), rating)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

func (h *Handlers) handleDebugLog(w http.ResponseWriter, r *http.Request) {
	bag, err := h.chat.GetChatCompletionDebugLog(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"), r.PathValue("sessionId"), r.PathValue("debugLogId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, bag)
}

func (h *Handlers) handleRename(w http.ResponseWriter, r *http.Request) {
	session, err := h.chat.RenameChatSession(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"), r.PathValue("sessionId"), r.URL.Query().Get("newChatSessionName"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *Handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.DeleteChatSession(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"), r.PathValue("sessionId")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleCompletion(w http.ResponseWriter, r *http.Request) {
	prompt, err := readPrompt(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	msgs := h.chat.GetChatCompletion(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"), r.PathValue("sessionId"), prompt)
	respondJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) handleSummarize(w http.ResponseWriter, r *http.Request) {
	prompt, err := readPrompt(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	name, err := h.chat.SummarizeChatSessionName(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"), r.PathValue("sessionId"), prompt)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, name)
}

func (h *Handlers) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.bank.GetUserRegisteredAccounts(r.Context(), r.PathValue("tenantId"), r.PathValue("userId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []banking.BankAccount{}
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *Handlers) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, userID, accountID := r.PathValue("tenantId"), r.PathValue("userId"), r.PathValue("accountId")

	ok, err := h.bank.IsAccountRegisteredToUser(ctx, tenantID, userID, accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !ok {
		h.respondError(w, r, fmt.Errorf("account %s: %w", accountID, core.ErrNotFound))
		return
	}

	txs, err := h.bank.ListRecentTransactions(ctx, tenantID, accountID, banking.DefaultTransactionsLimit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if txs == nil {
		txs = []banking.BankTransaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}

func (h *Handlers) handleServiceRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.bank.ListServiceRequests(r.Context(), r.PathValue("tenantId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []banking.ServiceRequest{}
	}
	respondJSON(w, http.StatusOK, reqs)
}

func (h *Handlers) handleAddDocument(c banking.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.respondError(w, r, fmt.Errorf("%w: %v", chat.ErrInvalidArgument, err))
			return
		}
		if err := h.chat.AddDocument(r.Context(), string(c), raw); err != nil {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, true)
	}
}
