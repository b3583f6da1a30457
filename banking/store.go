package banking

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDocument is returned when a seeding document cannot be stored.
var ErrInvalidDocument = errors.New("invalid document")

// Container names a document collection for the seeding endpoints.
type Container string

// Seedable containers.
const (
	ContainerOffers   Container = "offerdata"
	ContainerAccounts Container = "accountdata"
	ContainerUsers    Container = "userdata"
)

// ParseContainer validates a container name.
func ParseContainer(s string) (Container, error) {
	switch c := Container(s); c {
	case ContainerOffers, ContainerAccounts, ContainerUsers:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown container %q", ErrInvalidDocument, s)
	}
}

// ServiceRequestFilter narrows ListServiceRequests. Empty fields match everything.
type ServiceRequestFilter struct {
	TenantID  string
	AccountID string
	UserID    string
	Type      *ServiceRequestType
}

// Match reports whether r satisfies the filter.
func (f ServiceRequestFilter) Match(r ServiceRequest) bool {
	if f.TenantID != "" && r.TenantID != f.TenantID {
		return false
	}
	if f.AccountID != "" && r.AccountID != f.AccountID {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.Type != nil && r.SRType != *f.Type {
		return false
	}
	return true
}

// Store persists banking documents. Lookups of missing documents return
// core.ErrNotFound. Implementations must be safe for concurrent use.
type Store interface {
	GetUser(ctx context.Context, tenantID, userID string) (*BankUser, error)
	ListAccounts(ctx context.Context, tenantID, userID string) ([]BankAccount, error)
	GetAccount(ctx context.Context, tenantID, accountID string) (*BankAccount, error)

	// ListTransactions returns transactions with start <= time <= end, oldest first.
	ListTransactions(ctx context.Context, tenantID, accountID string, start, end time.Time) ([]BankTransaction, error)

	CreateServiceRequest(ctx context.Context, req ServiceRequest) (*ServiceRequest, error)
	ListServiceRequests(ctx context.Context, filter ServiceRequestFilter) ([]ServiceRequest, error)
	AppendServiceRequestAnnotation(ctx context.Context, tenantID, accountID, requestID, annotation string) error

	ListOfferTerms(ctx context.Context, tenantID string, accountType AccountType) ([]OfferTerm, error)
	GetOffer(ctx context.Context, tenantID, offerID string) (*Offer, error)

	// PutDocument upserts a raw document into a container.
	PutDocument(ctx context.Context, container Container, doc Document) error
}

// VectorSearcher is implemented by stores able to rank offer terms by vector
// distance natively.
type VectorSearcher interface {
	SearchOfferTerms(ctx context.Context, tenantID string, accountType AccountType, vector []float32, limit int) ([]ScoredOfferTerm, error)
}

// DecodeDocument converts a raw document into its typed model according to the
// container and "type" discriminator. Stores without schemaless storage use it
// to route seeding documents.
func DecodeDocument(container Container, doc Document) (any, error) {
	raw, err := jsonRoundTrip(doc)
	if err != nil {
		return nil, err
	}
	typ := doc.StringField("type")

	switch container {
	case ContainerUsers:
		var u BankUser
		if err := raw(&u); err != nil {
			return nil, err
		}
		u.Type = TypeBankUser
		return u, nil
	case ContainerAccounts:
		switch typ {
		case TypeBankTransaction:
			var t BankTransaction
			err := raw(&t)
			return t, err
		case TypeServiceRequest:
			var r ServiceRequest
			err := raw(&r)
			return r, err
		case TypeBankAccount, "":
			var a BankAccount
			if err := raw(&a); err != nil {
				return nil, err
			}
			a.Type = TypeBankAccount
			return a, nil
		}
	case ContainerOffers:
		switch typ {
		case TypeOfferTerm:
			var t OfferTerm
			err := raw(&t)
			return t, err
		case TypeOffer, "":
			var o Offer
			if err := raw(&o); err != nil {
				return nil, err
			}
			o.Type = TypeOffer
			if o.OfferID == "" {
				o.OfferID = o.ID
			}
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: type %q not accepted by %s", ErrInvalidDocument, typ, container)
}

// PartitionKey returns the hierarchical partition key values of doc in container.
func PartitionKey(container Container, doc Document) []string {
	tenant := doc.StringField("tenantId")
	if container != ContainerAccounts {
		return []string{tenant}
	}
	account := doc.StringField("accountId")
	if account == "" {
		account = doc.StringField("id")
	}
	return []string{tenant, account}
}
