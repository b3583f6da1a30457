// Package memory provides a volatile store keeping chat and banking documents
// in process local maps. It is safe for concurrent access and suited for
// tests, the CLI chat loop and demo servers. Documents are copied on the way
// in and out so callers cannot mutate internal state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/core"
)

type chatKey struct{ tenant, user, session string }

type sessionData struct {
	session  core.Session
	messages []core.Message
	logs     map[string]core.DebugLog
}

// Store implements core.ChatStore and banking.Store.
type Store struct {
	mu sync.RWMutex

	// insertion order of sessions
	order    map[chatKey]int
	sessions map[chatKey]*sessionData
	seq      int

	users        map[string]banking.BankUser          // tenant/user
	accounts     map[string]banking.BankAccount       // tenant/account
	transactions map[string][]banking.BankTransaction // tenant/account
	requests     map[string]banking.ServiceRequest    // tenant/request
	offers       map[string]banking.Offer             // tenant/offer
	terms        map[string]banking.OfferTerm         // tenant/term
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		order:        map[chatKey]int{},
		sessions:     map[chatKey]*sessionData{},
		users:        map[string]banking.BankUser{},
		accounts:     map[string]banking.BankAccount{},
		transactions: map[string][]banking.BankTransaction{},
		requests:     map[string]banking.ServiceRequest{},
		offers:       map[string]banking.Offer{},
		terms:        map[string]banking.OfferTerm{},
	}
}

func key(parts ...string) string { return strings.Join(parts, "/") }

// ListSessions implements core.ChatStore.
func (s *Store) ListSessions(_ context.Context, tenantID, userID string) ([]core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type ordered struct {
		seq int
		s   core.Session
	}
	var found []ordered
	for k, d := range s.sessions {
		if k.tenant == tenantID && k.user == userID {
			found = append(found, ordered{seq: s.order[k], s: d.session})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })
	out := make([]core.Session, len(found))
	for i, f := range found {
		out[i] = f.s
	}
	return out, nil
}

// GetSession implements core.ChatStore.
func (s *Store) GetSession(_ context.Context, tenantID, userID, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sessions[chatKey{tenantID, userID, sessionID}]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	sess := d.session
	return &sess, nil
}

// InsertSession implements core.ChatStore.
func (s *Store) InsertSession(_ context.Context, session core.Session) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := chatKey{session.TenantID, session.UserID, session.SessionID}
	if _, exists := s.sessions[k]; exists {
		return nil, fmt.Errorf("session %s already exists", session.SessionID)
	}
	s.seq++
	s.order[k] = s.seq
	s.sessions[k] = &sessionData{session: session, logs: map[string]core.DebugLog{}}
	return &session, nil
}

// UpdateSession implements core.ChatStore.
func (s *Store) UpdateSession(_ context.Context, session core.Session) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.sessions[chatKey{session.TenantID, session.UserID, session.SessionID}]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", session.SessionID, core.ErrNotFound)
	}
	d.session = session
	return &session, nil
}

// DeleteSession implements core.ChatStore.
func (s *Store) DeleteSession(_ context.Context, tenantID, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := chatKey{tenantID, userID, sessionID}
	if _, ok := s.sessions[k]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	delete(s.sessions, k)
	delete(s.order, k)
	return nil
}

// ListMessages implements core.ChatStore.
func (s *Store) ListMessages(_ context.Context, tenantID, userID, sessionID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sessions[chatKey{tenantID, userID, sessionID}]
	if !ok {
		return []core.Message{}, nil
	}
	out := make([]core.Message, len(d.messages))
	copy(out, d.messages)
	return out, nil
}

// UpsertSessionBatch implements core.ChatStore. The write happens under one
// lock so readers observe all documents or none.
func (s *Store) UpsertSessionBatch(_ context.Context, messages []core.Message, logs []core.DebugLog, session core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := chatKey{session.TenantID, session.UserID, session.SessionID}
	d, ok := s.sessions[k]
	if !ok {
		return fmt.Errorf("session %s: %w", session.SessionID, core.ErrNotFound)
	}
	for _, m := range messages {
		if m.SessionID != session.SessionID {
			return fmt.Errorf("message %s belongs to session %s, not %s", m.ID, m.SessionID, session.SessionID)
		}
	}
	for _, m := range messages {
		replaced := false
		for i := range d.messages {
			if d.messages[i].ID == m.ID {
				d.messages[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			d.messages = append(d.messages, m)
		}
	}
	for _, l := range logs {
		l.PropertyBag = append([]core.LogProperty(nil), l.PropertyBag...)
		d.logs[l.ID] = l
	}
	d.session = session
	return nil
}

// UpdateMessageRating implements core.ChatStore.
func (s *Store) UpdateMessageRating(_ context.Context, tenantID, userID, sessionID, messageID string, rating *bool) (*core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.sessions[chatKey{tenantID, userID, sessionID}]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	for i := range d.messages {
		if d.messages[i].ID != messageID {
			continue
		}
		if rating == nil {
			d.messages[i].Rating = nil
		} else {
			r := *rating
			d.messages[i].Rating = &r
		}
		m := d.messages[i]
		return &m, nil
	}
	return nil, fmt.Errorf("message %s: %w", messageID, core.ErrNotFound)
}

// GetDebugLog implements core.ChatStore.
func (s *Store) GetDebugLog(_ context.Context, tenantID, userID, sessionID, debugLogID string) (*core.DebugLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sessions[chatKey{tenantID, userID, sessionID}]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	l, ok := d.logs[debugLogID]
	if !ok {
		return nil, fmt.Errorf("debug log %s: %w", debugLogID, core.ErrNotFound)
	}
	l.PropertyBag = append([]core.LogProperty(nil), l.PropertyBag...)
	return &l, nil
}

// GetUser implements banking.Store.
func (s *Store) GetUser(_ context.Context, tenantID, userID string) (*banking.BankUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[key(tenantID, userID)]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	return &u, nil
}

// ListAccounts implements banking.Store.
func (s *Store) ListAccounts(_ context.Context, tenantID, userID string) ([]banking.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []banking.BankAccount{}
	for _, a := range s.accounts {
		if a.TenantID == tenantID && a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAccount implements banking.Store.
func (s *Store) GetAccount(_ context.Context, tenantID, accountID string) (*banking.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[key(tenantID, accountID)]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}
	return &a, nil
}

// ListTransactions implements banking.Store.
func (s *Store) ListTransactions(_ context.Context, tenantID, accountID string, start, end time.Time) ([]banking.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []banking.BankTransaction{}
	for _, tx := range s.transactions[key(tenantID, accountID)] {
		if tx.TransactionDateTime.Before(start) || tx.TransactionDateTime.After(end) {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TransactionDateTime.Before(out[j].TransactionDateTime)
	})
	return out, nil
}

// CreateServiceRequest implements banking.Store.
func (s *Store) CreateServiceRequest(_ context.Context, req banking.ServiceRequest) (*banking.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.RequestAnnotations = append([]string(nil), req.RequestAnnotations...)
	s.requests[key(req.TenantID, req.ID)] = req
	return &req, nil
}

// ListServiceRequests implements banking.Store.
func (s *Store) ListServiceRequests(_ context.Context, filter banking.ServiceRequestFilter) ([]banking.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []banking.ServiceRequest{}
	for _, r := range s.requests {
		if filter.Match(r) {
			r.RequestAnnotations = append([]string(nil), r.RequestAnnotations...)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedOn.Before(out[j].RequestedOn) })
	return out, nil
}

// AppendServiceRequestAnnotation implements banking.Store.
func (s *Store) AppendServiceRequestAnnotation(_ context.Context, tenantID, accountID, requestID, annotation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, requestID)
	r, ok := s.requests[k]
	if !ok || r.AccountID != accountID {
		return fmt.Errorf("service request %s: %w", requestID, core.ErrNotFound)
	}
	r.RequestAnnotations = append(append([]string(nil), r.RequestAnnotations...), annotation)
	s.requests[k] = r
	return nil
}

// ListOfferTerms implements banking.Store.
func (s *Store) ListOfferTerms(_ context.Context, tenantID string, accountType banking.AccountType) ([]banking.OfferTerm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []banking.OfferTerm{}
	for _, t := range s.terms {
		if t.TenantID == tenantID && t.AccountType == accountType {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetOffer implements banking.Store.
func (s *Store) GetOffer(_ context.Context, tenantID, offerID string) (*banking.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.offers {
		if o.TenantID == tenantID && (o.OfferID == offerID || o.ID == offerID) {
			return &o, nil
		}
	}
	return nil, fmt.Errorf("offer %s: %w", offerID, core.ErrNotFound)
}

// PutDocument implements banking.Store.
func (s *Store) PutDocument(_ context.Context, container banking.Container, doc banking.Document) error {
	v, err := banking.DecodeDocument(container, doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch d := v.(type) {
	case banking.BankUser:
		s.users[key(d.TenantID, d.ID)] = d
	case banking.BankAccount:
		s.accounts[key(d.TenantID, d.ID)] = d
	case banking.BankTransaction:
		k := key(d.TenantID, d.AccountID)
		txs := s.transactions[k]
		for i := range txs {
			if txs[i].ID == d.ID {
				txs[i] = d
				return nil
			}
		}
		s.transactions[k] = append(txs, d)
	case banking.ServiceRequest:
		s.requests[key(d.TenantID, d.ID)] = d
	case banking.Offer:
		s.offers[key(d.TenantID, d.ID)] = d
	case banking.OfferTerm:
		s.terms[key(d.TenantID, d.ID)] = d
	}
	return nil
}
