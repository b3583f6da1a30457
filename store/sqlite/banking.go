package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/bankcopilot/banking"
)

// GetUser implements banking.Store.
func (s *Store) GetUser(ctx context.Context, tenantID, userID string) (*banking.BankUser, error) {
	return getDoc[banking.BankUser](ctx, s.db, "user "+userID,
		`SELECT doc FROM bank_users WHERE tenant_id = ? AND id = ?`, tenantID, userID)
}

// ListAccounts implements banking.Store.
func (s *Store) ListAccounts(ctx context.Context, tenantID, userID string) ([]banking.BankAccount, error) {
	return queryDocs[banking.BankAccount](ctx, s.db,
		`SELECT doc FROM bank_accounts WHERE tenant_id = ? AND user_id = ? ORDER BY id`, tenantID, userID)
}

// GetAccount implements banking.Store.
func (s *Store) GetAccount(ctx context.Context, tenantID, accountID string) (*banking.BankAccount, error) {
	return getDoc[banking.BankAccount](ctx, s.db, "account "+accountID,
		`SELECT doc FROM bank_accounts WHERE tenant_id = ? AND id = ?`, tenantID, accountID)
}

// ListTransactions implements banking.Store.
func (s *Store) ListTransactions(ctx context.Context, tenantID, accountID string, start, end time.Time) ([]banking.BankTransaction, error) {
	return queryDocs[banking.BankTransaction](ctx, s.db, `
		SELECT doc FROM bank_transactions
		WHERE tenant_id = ? AND account_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts`, tenantID, accountID, ts(start), ts(end))
}

// CreateServiceRequest implements banking.Store.
func (s *Store) CreateServiceRequest(ctx context.Context, req banking.ServiceRequest) (*banking.ServiceRequest, error) {
	if err := s.putServiceRequest(ctx, s.db, req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Store) putServiceRequest(ctx context.Context, e execer, req banking.ServiceRequest) error {
	doc, err := encode(req)
	if err != nil {
		return err
	}
	if _, err := e.ExecContext(ctx, `
		INSERT INTO service_requests (tenant_id, id, account_id, user_id, sr_type, requested_on, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET account_id = excluded.account_id, user_id = excluded.user_id,
			sr_type = excluded.sr_type, requested_on = excluded.requested_on, doc = excluded.doc`,
		req.TenantID, req.ID, req.AccountID, req.UserID, int(req.SRType), ts(req.RequestedOn), doc); err != nil {
		return fmt.Errorf("store service request %s: %w", req.ID, err)
	}
	return nil
}

// ListServiceRequests implements banking.Store.
func (s *Store) ListServiceRequests(ctx context.Context, f banking.ServiceRequestFilter) ([]banking.ServiceRequest, error) {
	query := `SELECT doc FROM service_requests WHERE 1 = 1`
	var args []any
	if f.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, f.TenantID)
	}
	if f.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Type != nil {
		query += ` AND sr_type = ?`
		args = append(args, int(*f.Type))
	}
	query += ` ORDER BY requested_on, rowid`
	return queryDocs[banking.ServiceRequest](ctx, s.db, query, args...)
}

// AppendServiceRequestAnnotation implements banking.Store.
func (s *Store) AppendServiceRequestAnnotation(ctx context.Context, tenantID, accountID, requestID, annotation string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	req, err := getDoc[banking.ServiceRequest](ctx, tx, "service request "+requestID,
		`SELECT doc FROM service_requests WHERE tenant_id = ? AND account_id = ? AND id = ?`, tenantID, accountID, requestID)
	if err != nil {
		return err
	}
	req.RequestAnnotations = append(req.RequestAnnotations, annotation)
	if err := s.putServiceRequest(ctx, tx, *req); err != nil {
		return err
	}
	return tx.Commit()
}

// ListOfferTerms implements banking.Store.
func (s *Store) ListOfferTerms(ctx context.Context, tenantID string, accountType banking.AccountType) ([]banking.OfferTerm, error) {
	return queryDocs[banking.OfferTerm](ctx, s.db,
		`SELECT doc FROM offer_terms WHERE tenant_id = ? AND account_type = ? ORDER BY id`, tenantID, string(accountType))
}

// GetOffer implements banking.Store.
func (s *Store) GetOffer(ctx context.Context, tenantID, offerID string) (*banking.Offer, error) {
	return getDoc[banking.Offer](ctx, s.db, "offer "+offerID,
		`SELECT doc FROM offers WHERE tenant_id = ? AND (offer_id = ? OR id = ?) LIMIT 1`, tenantID, offerID, offerID)
}

// PutDocument implements banking.Store.
func (s *Store) PutDocument(ctx context.Context, container banking.Container, doc banking.Document) error {
	v, err := banking.DecodeDocument(container, doc)
	if err != nil {
		return err
	}
	body, err := encode(v)
	if err != nil {
		return err
	}

	switch d := v.(type) {
	case banking.BankUser:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO bank_users (tenant_id, id, doc) VALUES (?, ?, ?)
			ON CONFLICT (tenant_id, id) DO UPDATE SET doc = excluded.doc`, d.TenantID, d.ID, body)
	case banking.BankAccount:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO bank_accounts (tenant_id, id, user_id, doc) VALUES (?, ?, ?, ?)
			ON CONFLICT (tenant_id, id) DO UPDATE SET user_id = excluded.user_id, doc = excluded.doc`,
			d.TenantID, d.ID, d.UserID, body)
	case banking.BankTransaction:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO bank_transactions (tenant_id, account_id, id, ts, doc) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, account_id, id) DO UPDATE SET ts = excluded.ts, doc = excluded.doc`,
			d.TenantID, d.AccountID, d.ID, ts(d.TransactionDateTime), body)
	case banking.ServiceRequest:
		err = s.putServiceRequest(ctx, s.db, d)
	case banking.Offer:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO offers (tenant_id, id, offer_id, doc) VALUES (?, ?, ?, ?)
			ON CONFLICT (tenant_id, id) DO UPDATE SET offer_id = excluded.offer_id, doc = excluded.doc`,
			d.TenantID, d.ID, d.OfferID, body)
	case banking.OfferTerm:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO offer_terms (tenant_id, id, account_type, doc) VALUES (?, ?, ?, ?)
			ON CONFLICT (tenant_id, id) DO UPDATE SET account_type = excluded.account_type, doc = excluded.doc`,
			d.TenantID, d.ID, string(d.AccountType), body)
	default:
		return fmt.Errorf("%w: unsupported document %T", banking.ErrInvalidDocument, v)
	}
	if err != nil {
		return fmt.Errorf("store document in %s: %w", container, err)
	}
	return nil
}
