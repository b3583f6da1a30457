// Package storetest holds a behavioural test suite shared by the store
// implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is the combined contract exercised by the suite.
type Store interface {
	core.ChatStore
	banking.Store
}

// Run executes the suite. newStore must return an empty store per call.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SessionLifecycle", func(t *testing.T) { testSessionLifecycle(t, newStore(t)) })
	t.Run("SessionBatchAndRating", func(t *testing.T) { testSessionBatch(t, newStore(t)) })
	t.Run("BankingReads", func(t *testing.T) { testBankingReads(t, newStore(t)) })
	t.Run("ServiceRequests", func(t *testing.T) { testServiceRequests(t, newStore(t)) })
	t.Run("Offers", func(t *testing.T) { testOffers(t, newStore(t)) })
}

func testSessionLifecycle(t *testing.T, s Store) {
	ctx := context.Background()

	first := core.NewSession("t1", "u1")
	second := core.NewSession("t1", "u1")
	other := core.NewSession("t1", "u2")
	for _, sess := range []core.Session{first, second, other} {
		_, err := s.InsertSession(ctx, sess)
		require.NoError(t, err)
	}

	sessions, err := s.ListSessions(ctx, "t1", "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.Equal(t, core.DefaultSessionName, sessions[0].Name)

	first.Name = "Card Limit"
	_, err = s.UpdateSession(ctx, first)
	require.NoError(t, err)
	got, err := s.GetSession(ctx, "t1", "u1", first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Card Limit", got.Name)

	require.NoError(t, s.DeleteSession(ctx, "t1", "u1", first.SessionID))
	_, err = s.GetSession(ctx, "t1", "u1", first.SessionID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.UpdateSession(ctx, first)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testSessionBatch(t *testing.T, s Store) {
	ctx := context.Background()

	sess := core.NewSession("t1", "u1")
	_, err := s.InsertSession(ctx, sess)
	require.NoError(t, err)

	user := core.NewMessage("t1", "u1", sess.SessionID, core.SenderUser, core.SenderRoleUser, "hi")
	reply := core.NewMessage("t1", "u1", sess.SessionID, "Coordinator", core.SenderRoleAssistant, "hello")
	reply.TimeStamp = user.TimeStamp.Add(time.Millisecond)
	log := core.NewDebugLog(reply, []core.LogProperty{{Key: "SelectNextAgent", Value: "{Agent: Coordinator, Reason: greeting}"}})
	reply.DebugLogID = log.ID
	sess.TokensUsed = 7
	sess.ActiveAgent = "Coordinator"

	require.NoError(t, s.UpsertSessionBatch(ctx, []core.Message{user, reply}, []core.DebugLog{log}, sess))

	msgs, err := s.ListMessages(ctx, "t1", "u1", sess.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, log.ID, msgs[1].DebugLogID)

	got, err := s.GetSession(ctx, "t1", "u1", sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.TokensUsed)
	assert.Equal(t, "Coordinator", got.ActiveAgent)

	dl, err := s.GetDebugLog(ctx, "t1", "u1", sess.SessionID, log.ID)
	require.NoError(t, err)
	require.Len(t, dl.PropertyBag, 1)
	assert.Equal(t, "SelectNextAgent", dl.PropertyBag[0].Key)

	up := true
	rated, err := s.UpdateMessageRating(ctx, "t1", "u1", sess.SessionID, reply.ID, &up)
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.True(t, *rated.Rating)

	cleared, err := s.UpdateMessageRating(ctx, "t1", "u1", sess.SessionID, reply.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.Rating)

	_, err = s.UpdateMessageRating(ctx, "t1", "u1", sess.SessionID, "missing", &up)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetDebugLog(ctx, "t1", "u1", sess.SessionID, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.DeleteSession(ctx, "t1", "u1", sess.SessionID))
	msgs, err = s.ListMessages(ctx, "t1", "u1", sess.SessionID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testBankingReads(t *testing.T, s Store) {
	ctx := context.Background()
	testutil.Seed(t, s)

	u, err := s.GetUser(ctx, testutil.TenantID, testutil.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Mark Brown", u.Name)

	_, err = s.GetUser(ctx, testutil.TenantID, "nobody")
	assert.ErrorIs(t, err, core.ErrNotFound)

	accounts, err := s.ListAccounts(ctx, testutil.TenantID, testutil.UserID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, testutil.SavingsID, accounts[0].ID)

	acc, err := s.GetAccount(ctx, testutil.TenantID, testutil.CreditCardID)
	require.NoError(t, err)
	assert.Equal(t, banking.CardTypeVisa, acc.CardType)

	txs, err := s.ListTransactions(ctx, testutil.TenantID, testutil.SavingsID, testutil.Base, testutil.Base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, testutil.TransactionID, txs[0].ID)
	assert.True(t, txs[1].TransactionDateTime.After(txs[0].TransactionDateTime))
}

func testServiceRequests(t *testing.T, s Store) {
	ctx := context.Background()

	complaint := banking.ServiceRequestComplaint
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, r := range []banking.ServiceRequest{
		{ID: "sr1", AccountID: "a1", UserID: "u1", SRType: banking.ServiceRequestComplaint},
		{ID: "sr2", AccountID: "a1", UserID: "u1", SRType: banking.ServiceRequestFundTransfer, DebitAmount: 25.5},
		{ID: "sr3", AccountID: "a2", UserID: "u2", SRType: banking.ServiceRequestComplaint},
	} {
		r.Type = banking.TypeServiceRequest
		r.TenantID = "t1"
		r.RequestedOn = base.Add(time.Duration(i) * time.Minute)
		r.RequestAnnotations = []string{"created"}
		_, err := s.CreateServiceRequest(ctx, r)
		require.NoError(t, err)
	}

	all, err := s.ListServiceRequests(ctx, banking.ServiceRequestFilter{TenantID: "t1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filtered, err := s.ListServiceRequests(ctx, banking.ServiceRequestFilter{TenantID: "t1", AccountID: "a1", Type: &complaint})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "sr1", filtered[0].ID)

	require.NoError(t, s.AppendServiceRequestAnnotation(ctx, "t1", "a1", "sr2", "updated"))
	byUser, err := s.ListServiceRequests(ctx, banking.ServiceRequestFilter{TenantID: "t1", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, []string{"created", "updated"}, byUser[1].RequestAnnotations)
	assert.InDelta(t, 25.5, byUser[1].DebitAmount, 0.001)

	err = s.AppendServiceRequestAnnotation(ctx, "t1", "a1", "missing", "x")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testOffers(t *testing.T, s Store) {
	ctx := context.Background()
	testutil.Seed(t, s)

	o, err := s.GetOffer(ctx, testutil.TenantID, testutil.SavingsOffer)
	require.NoError(t, err)
	assert.Equal(t, "High Yield Savings", o.Name)

	_, err = s.GetOffer(ctx, testutil.TenantID, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	terms, err := s.ListOfferTerms(ctx, testutil.TenantID, banking.AccountTypeSavings)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, []float32{1, 0}, terms[0].Vector)

	doc, err := banking.ParseDocument([]byte(`{"id":"x","type":"Unknown","tenantId":"t"}`))
	require.NoError(t, err)
	assert.ErrorIs(t, s.PutDocument(ctx, banking.ContainerOffers, doc), banking.ErrInvalidDocument)
}
