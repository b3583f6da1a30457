package cosmos

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/core"
)

// GetUser implements banking.Store.
func (s *Store) GetUser(ctx context.Context, tenantID, userID string) (*banking.BankUser, error) {
	return read[banking.BankUser](ctx, s.users, partitionKey(tenantID), userID, "user "+userID)
}

// ListAccounts implements banking.Store.
func (s *Store) ListAccounts(ctx context.Context, tenantID, userID string) ([]banking.BankAccount, error) {
	accounts, err := query[banking.BankAccount](ctx, s.accounts, crossPartition,
		`SELECT * FROM c WHERE c.type = @type AND c.tenantId = @tenantId AND c.userId = @userId`,
		params("@type", banking.TypeBankAccount, "@tenantId", tenantID, "@userId", userID))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// GetAccount implements banking.Store.
func (s *Store) GetAccount(ctx context.Context, tenantID, accountID string) (*banking.BankAccount, error) {
	return read[banking.BankAccount](ctx, s.accounts, partitionKey(tenantID, accountID), accountID, "account "+accountID)
}

// ListTransactions implements banking.Store.
func (s *Store) ListTransactions(ctx context.Context, tenantID, accountID string, start, end time.Time) ([]banking.BankTransaction, error) {
	txs, err := query[banking.BankTransaction](ctx, s.accounts, partitionKey(tenantID, accountID), `
		SELECT * FROM c
		WHERE c.type = @type AND c.accountId = @accountId
		AND c.transactionDateTime >= @start AND c.transactionDateTime <= @end
		ORDER BY c.transactionDateTime`,
		params("@type", banking.TypeBankTransaction, "@accountId", accountID,
			"@start", start.UTC().Format(time.RFC3339), "@end", end.UTC().Format(time.RFC3339)))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// CreateServiceRequest implements banking.Store.
func (s *Store) CreateServiceRequest(ctx context.Context, req banking.ServiceRequest) (*banking.ServiceRequest, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.requests.CreateItem(ctx, partitionKey(req.TenantID, req.AccountID), raw, nil); err != nil {
		return nil, wrap("create service request", err)
	}
	return &req, nil
}

// serviceRequestQuery builds the filter query; a known account scopes it to one partition.
func serviceRequestQuery(f banking.ServiceRequestFilter) (string, []azcosmos.QueryParameter) {
	var sb strings.Builder
	sb.WriteString(`SELECT * FROM c WHERE c.type = @type`)
	p := params("@type", banking.TypeServiceRequest)
	if f.TenantID != "" {
		sb.WriteString(` AND c.tenantId = @tenantId`)
		p = append(p, params("@tenantId", f.TenantID)...)
	}
	if f.AccountID != "" {
		sb.WriteString(` AND c.accountId = @accountId`)
		p = append(p, params("@accountId", f.AccountID)...)
	}
	if f.UserID != "" {
		sb.WriteString(` AND c.userId = @userId`)
		p = append(p, params("@userId", f.UserID)...)
	}
	if f.Type != nil {
		sb.WriteString(` AND c.SRType = @srType`)
		p = append(p, params("@srType", int(*f.Type))...)
	}
	return sb.String(), p
}

// ListServiceRequests implements banking.Store.
func (s *Store) ListServiceRequests(ctx context.Context, f banking.ServiceRequestFilter) ([]banking.ServiceRequest, error) {
	q, p := serviceRequestQuery(f)
	pk := crossPartition
	if f.TenantID != "" && f.AccountID != "" {
		pk = partitionKey(f.TenantID, f.AccountID)
	}
	reqs, err := query[banking.ServiceRequest](ctx, s.requests, pk, q, p)
	if err != nil {
		return nil, fmt.Errorf("list service requests: %w", err)
	}
	return reqs, nil
}

// AppendServiceRequestAnnotation implements banking.Store.
func (s *Store) AppendServiceRequestAnnotation(ctx context.Context, tenantID, accountID, requestID, annotation string) error {
	ops := azcosmos.PatchOperations{}
	ops.AppendAdd("/requestAnnotations/-", annotation)
	if _, err := s.requests.PatchItem(ctx, partitionKey(tenantID, accountID), requestID, ops, nil); err != nil {
		return wrap("service request "+requestID, err)
	}
	return nil
}

// ListOfferTerms implements banking.Store.
func (s *Store) ListOfferTerms(ctx context.Context, tenantID string, accountType banking.AccountType) ([]banking.OfferTerm, error) {
	terms, err := query[banking.OfferTerm](ctx, s.offers, partitionKey(tenantID),
		`SELECT * FROM c WHERE c.type = @type AND c.accountType = @accountType`,
		params("@type", banking.TypeOfferTerm, "@accountType", string(accountType)))
	if err != nil {
		return nil, fmt.Errorf("list offer terms: %w", err)
	}
	return terms, nil
}

// SearchOfferTerms implements banking.VectorSearcher using VectorDistance.
func (s *Store) SearchOfferTerms(ctx context.Context, tenantID string, accountType banking.AccountType, vector []float32, limit int) ([]banking.ScoredOfferTerm, error) {
	hits, err := query[banking.ScoredOfferTerm](ctx, s.offers, partitionKey(tenantID), `
		SELECT TOP @limit c.id, c.type, c.tenantId, c.offerId, c.name, c.text, c.accountType,
			VectorDistance(c.vector, @vector) AS similarityScore
		FROM c
		WHERE c.type = @type AND c.accountType = @accountType AND VectorDistance(c.vector, @vector) > @minScore
		ORDER BY VectorDistance(c.vector, @vector)`,
		params("@limit", limit, "@vector", vector, "@type", banking.TypeOfferTerm,
			"@accountType", string(accountType), "@minScore", s.minSimilarity))
	if err != nil {
		return nil, fmt.Errorf("vector search offer terms: %w", err)
	}
	return hits, nil
}

// GetOffer implements banking.Store.
func (s *Store) GetOffer(ctx context.Context, tenantID, offerID string) (*banking.Offer, error) {
	offers, err := query[banking.Offer](ctx, s.offers, partitionKey(tenantID),
		`SELECT * FROM c WHERE c.type = @type AND (c.offerId = @offerId OR c.id = @offerId)`,
		params("@type", banking.TypeOffer, "@offerId", offerID))
	if err != nil {
		return nil, wrap("offer "+offerID, err)
	}
	if len(offers) == 0 {
		return nil, fmt.Errorf("offer %s: %w", offerID, core.ErrNotFound)
	}
	return &offers[0], nil
}

// PutDocument implements banking.Store. Documents are stored in their typed
// form so that missing discriminators are filled in.
func (s *Store) PutDocument(ctx context.Context, container banking.Container, doc banking.Document) error {
	v, err := banking.DecodeDocument(container, doc)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", banking.ErrInvalidDocument, err)
	}

	target := s.offers
	switch v.(type) {
	case banking.BankUser:
		target = s.users
	case banking.BankAccount, banking.BankTransaction:
		target = s.accounts
	case banking.ServiceRequest:
		target = s.requests
	}
	pk := partitionKey(banking.PartitionKey(container, doc)...)
	if _, err := target.UpsertItem(ctx, pk, raw, nil); err != nil {
		return wrap("store document in "+string(container), err)
	}
	return nil
}
