package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hupe1980/bankcopilot/banking"
	"github.com/stretchr/testify/require"
)

// Fixture identifiers.
const (
	TenantID      = "Contoso"
	UserID        = "Mark"
	OtherUserID   = "Jane"
	SavingsID     = "Acc001"
	CreditCardID  = "Acc002"
	OtherAccount  = "Acc100"
	SavingsOffer  = "Offer001"
	CardOffer     = "Offer002"
	TransactionID = "Tx001"
)

// Base is the reference time of the fixture transactions.
var Base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Users returns the fixture users.
func Users() []banking.BankUser {
	return []banking.BankUser{
		{ID: UserID, Type: banking.TypeBankUser, TenantID: TenantID, Name: "Mark Brown", Email: "mark@contoso.com", PhoneNumber: "+1 555 0100"},
		{ID: OtherUserID, Type: banking.TypeBankUser, TenantID: TenantID, Name: "Jane Doe", Email: "jane@contoso.com", PhoneNumber: "+1 555 0101"},
	}
}

// Accounts returns the fixture accounts.
func Accounts() []banking.BankAccount {
	return []banking.BankAccount{
		{ID: SavingsID, Type: banking.TypeBankAccount, TenantID: TenantID, UserID: UserID, Name: "Everyday Savings",
			AccountType: banking.AccountTypeSavings, Balance: 5000, InterestRate: 2, ShortDescription: "Savings account"},
		{ID: CreditCardID, Type: banking.TypeBankAccount, TenantID: TenantID, UserID: UserID, Name: "Platinum Card",
			AccountType: banking.AccountTypeCreditCard, CardType: banking.CardTypeVisa, CardNumber: 4111111111111111, Limit: 2000, ShortDescription: "Credit card"},
		{ID: OtherAccount, Type: banking.TypeBankAccount, TenantID: TenantID, UserID: OtherUserID, Name: "Jane Checking",
			AccountType: banking.AccountTypeChecking, Balance: 150},
	}
}

// Transactions returns twelve daily transactions on the savings account,
// the first one at Base.
func Transactions() []banking.BankTransaction {
	txs := make([]banking.BankTransaction, 0, 12)
	balance := int64(5000)
	for i := 0; i < 12; i++ {
		balance -= 10
		id := TransactionID
		if i > 0 {
			id = "Tx" + string(rune('A'+i))
		}
		txs = append(txs, banking.BankTransaction{
			ID: id, Type: banking.TypeBankTransaction, TenantID: TenantID, AccountID: SavingsID,
			DebitAmount: 10, AccountBalance: balance, Details: "Coffee",
			TransactionDateTime: Base.AddDate(0, 0, i),
		})
	}
	return txs
}

// Offers returns the fixture offers.
func Offers() []banking.Offer {
	return []banking.Offer{
		{ID: SavingsOffer, Type: banking.TypeOffer, TenantID: TenantID, OfferID: SavingsOffer, Name: "High Yield Savings",
			Description: "Savings with a bonus rate", AccountType: banking.AccountTypeSavings,
			PrerequisiteSubmissions: map[string]string{"Email": "contact email"}},
		{ID: CardOffer, Type: banking.TypeOffer, TenantID: TenantID, OfferID: CardOffer, Name: "Travel Card",
			Description: "Credit card with travel rewards", AccountType: banking.AccountTypeCreditCard},
	}
}

// OfferTerms returns searchable terms with small embeddings along two axes:
// [1,0] for interest topics and [0,1] for fee topics.
func OfferTerms() []banking.OfferTerm {
	return []banking.OfferTerm{
		{ID: "Term001", Type: banking.TypeOfferTerm, TenantID: TenantID, OfferID: SavingsOffer, AccountType: banking.AccountTypeSavings,
			Name: "Interest", Text: "Earn a bonus interest rate of 4 percent on balances", Vector: []float32{1, 0}},
		{ID: "Term002", Type: banking.TypeOfferTerm, TenantID: TenantID, OfferID: SavingsOffer, AccountType: banking.AccountTypeSavings,
			Name: "Fees", Text: "No monthly account fees", Vector: []float32{0, 1}},
		{ID: "Term003", Type: banking.TypeOfferTerm, TenantID: TenantID, OfferID: CardOffer, AccountType: banking.AccountTypeCreditCard,
			Name: "Rewards", Text: "Travel rewards on every purchase", Vector: []float32{0.5, 0.5}},
	}
}

// Seed loads all fixtures into store through PutDocument.
func Seed(t testing.TB, store banking.Store) {
	t.Helper()
	ctx := context.Background()
	put := func(c banking.Container, v any) {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		doc, err := banking.ParseDocument(raw)
		require.NoError(t, err)
		require.NoError(t, store.PutDocument(ctx, c, doc))
	}
	for _, u := range Users() {
		put(banking.ContainerUsers, u)
	}
	for _, a := range Accounts() {
		put(banking.ContainerAccounts, a)
	}
	for _, tx := range Transactions() {
		put(banking.ContainerAccounts, tx)
	}
	for _, o := range Offers() {
		put(banking.ContainerOffers, o)
	}
	for _, term := range OfferTerms() {
		put(banking.ContainerOffers, term)
	}
}
