package banking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/model"
)

// TeleBankerAvailability is the fixed call-back window offered to customers.
const TeleBankerAvailability = "Monday to Friday, 8 AM to 8 PM Pacific Time"

// Default result sizes.
const (
	DefaultSearchLimit       = 10
	DefaultTransactionsLimit = 10
)

// loanAnnualRate is the fixed interest rate used for payment estimates.
const loanAnnualRate = 0.05

// Options configures a Service.
type Options struct {
	// Embedder enables vector search over offer terms. Keyword ranking is used when nil.
	Embedder model.Embedder
	Logger   logging.Logger
	Clock    func() time.Time
	// SearchLimit caps SearchOfferTerms results.
	SearchLimit int
}

// Service implements the banking operations used by the agents and the API.
type Service struct {
	store       Store
	embedder    model.Embedder
	logger      logging.Logger
	now         func() time.Time
	searchLimit int
}

// NewService creates a Service over store.
func NewService(store Store, optFns ...func(o *Options)) *Service {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		Clock:       time.Now,
		SearchLimit: DefaultSearchLimit,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{
		store:       store,
		embedder:    opts.Embedder,
		logger:      logging.OrNoOp(opts.Logger),
		now:         opts.Clock,
		searchLimit: opts.SearchLimit,
	}
}

// GetUser returns the bank user.
func (s *Service) GetUser(ctx context.Context, tenantID, userID string) (*BankUser, error) {
	u, err := s.store.GetUser(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return u, nil
}

// GetUserRegisteredAccounts lists the accounts owned by a user.
func (s *Service) GetUserRegisteredAccounts(ctx context.Context, tenantID, userID string) ([]BankAccount, error) {
	accounts, err := s.store.ListAccounts(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts of %s: %w", userID, err)
	}
	return accounts, nil
}

// GetAccountDetails returns an account if it is registered to userID.
// Accounts of other users are reported as core.ErrNotFound.
func (s *Service) GetAccountDetails(ctx context.Context, tenantID, userID, accountID string) (*BankAccount, error) {
	acc, err := s.store.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	if acc.UserID != userID {
		return nil, fmt.Errorf("account %s of user %s: %w", accountID, userID, core.ErrNotFound)
	}
	return acc, nil
}

// IsAccountRegisteredToUser reports whether accountID belongs to userID.
func (s *Service) IsAccountRegisteredToUser(ctx context.Context, tenantID, userID, accountID string) (bool, error) {
	_, err := s.GetAccountDetails(ctx, tenantID, userID, accountID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// GetTransactions returns the transactions of an account between start and end (inclusive).
func (s *Service) GetTransactions(ctx context.Context, tenantID, accountID string, start, end time.Time) ([]BankTransaction, error) {
	if end.Before(start) {
		start, end = end, start
	}
	txs, err := s.store.ListTransactions(ctx, tenantID, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list transactions of %s: %w", accountID, err)
	}
	return txs, nil
}

// ListRecentTransactions returns the newest transactions of an account, newest first.
func (s *Service) ListRecentTransactions(ctx context.Context, tenantID, accountID string, limit int) ([]BankTransaction, error) {
	if limit <= 0 {
		limit = DefaultTransactionsLimit
	}
	txs, err := s.store.ListTransactions(ctx, tenantID, accountID, time.Time{}, s.now().UTC().AddDate(100, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("list transactions of %s: %w", accountID, err)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].TransactionDateTime.After(txs[j].TransactionDateTime)
	})
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Service) newServiceRequest(typ ServiceRequestType, tenantID, accountID, userID, annotation string) ServiceRequest {
	req := ServiceRequest{
		ID:          uuid.NewString(),
		Type:        TypeServiceRequest,
		TenantID:    tenantID,
		UserID:      userID,
		AccountID:   accountID,
		RequestedOn: s.now().UTC(),
		SRType:      typ,
	}
	if annotation != "" {
		req.RequestAnnotations = []string{annotation}
	}
	return req
}

func (s *Service) addServiceRequest(ctx context.Context, req ServiceRequest) (*ServiceRequest, error) {
	created, err := s.store.CreateServiceRequest(ctx, req)
	if err != nil {
		s.logger.Error("banking.service_request.create_failed", "type", req.SRType.String(), "error", err.Error())
		return nil, fmt.Errorf("create %s request: %w", req.SRType, err)
	}
	s.logger.Info("banking.service_request.created", "type", req.SRType.String(), "request_id", created.ID)
	return created, nil
}

// CreateFundTransferRequest records a request to move amount out of accountID.
func (s *Service) CreateFundTransferRequest(ctx context.Context, tenantID, accountID, userID, annotation, recipientEmail, recipientPhone string, amount float64) (*ServiceRequest, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive, got %v", amount)
	}
	req := s.newServiceRequest(ServiceRequestFundTransfer, tenantID, accountID, userID, annotation)
	req.RecipientEmail = recipientEmail
	req.RecipientPhone = recipientPhone
	req.DebitAmount = amount
	return s.addServiceRequest(ctx, req)
}

// CreateTeleBankerRequest schedules a call-back from a telebanker.
func (s *Service) CreateTeleBankerRequest(ctx context.Context, tenantID, accountID, userID, annotation string, scheduled time.Time) (*ServiceRequest, error) {
	req := s.newServiceRequest(ServiceRequestTeleBankerCallBack, tenantID, accountID, userID, annotation)
	req.ScheduledDateTime = scheduled.UTC()
	return s.addServiceRequest(ctx, req)
}

// GetTeleBankerAvailability returns the call-back window.
func (s *Service) GetTeleBankerAvailability() string {
	return TeleBankerAvailability
}

// CreateComplaint files a complaint about an account.
func (s *Service) CreateComplaint(ctx context.Context, tenantID, accountID, userID, annotation string) (*ServiceRequest, error) {
	return s.addServiceRequest(ctx, s.newServiceRequest(ServiceRequestComplaint, tenantID, accountID, userID, annotation))
}

// CreateFulfilmentRequest records a product registration request.
func (s *Service) CreateFulfilmentRequest(ctx context.Context, tenantID, accountID, userID, annotation string, details map[string]string) (*ServiceRequest, error) {
	req := s.newServiceRequest(ServiceRequestFulfilment, tenantID, accountID, userID, annotation)
	req.FulfilmentDetails = details
	return s.addServiceRequest(ctx, req)
}

// GetServiceRequests lists requests of an account, optionally narrowed to a user and type.
func (s *Service) GetServiceRequests(ctx context.Context, tenantID, accountID, userID string, typ *ServiceRequestType) ([]ServiceRequest, error) {
	reqs, err := s.store.ListServiceRequests(ctx, ServiceRequestFilter{
		TenantID:  tenantID,
		AccountID: accountID,
		UserID:    userID,
		Type:      typ,
	})
	if err != nil {
		return nil, fmt.Errorf("list service requests: %w", err)
	}
	return reqs, nil
}

// ListServiceRequests lists every service request of a tenant.
func (s *Service) ListServiceRequests(ctx context.Context, tenantID string) ([]ServiceRequest, error) {
	return s.GetServiceRequests(ctx, tenantID, "", "", nil)
}

// AddServiceRequestDescription appends a time stamped annotation to a request.
func (s *Service) AddServiceRequestDescription(ctx context.Context, tenantID, accountID, requestID, annotation string) error {
	entry := fmt.Sprintf("[%s] : %s", s.now().UTC().Format(time.RFC1123), annotation)
	if err := s.store.AppendServiceRequestAnnotation(ctx, tenantID, accountID, requestID, entry); err != nil {
		return fmt.Errorf("annotate service request %s: %w", requestID, err)
	}
	return nil
}

// SearchOfferTerms ranks the offer terms of an account type against a free
// text requirement. Vector similarity is used when an embedder is configured.
func (s *Service) SearchOfferTerms(ctx context.Context, tenantID string, accountType AccountType, requirement string) ([]ScoredOfferTerm, error) {
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, requirement)
		if err != nil {
			s.logger.Warn("banking.offer_search.embed_failed", "error", err.Error())
		} else {
			return s.vectorSearch(ctx, tenantID, accountType, vec)
		}
	}

	terms, err := s.store.ListOfferTerms(ctx, tenantID, accountType)
	if err != nil {
		return nil, fmt.Errorf("list offer terms: %w", err)
	}
	return stripVectors(RankByKeywords(terms, requirement, s.searchLimit)), nil
}

func (s *Service) vectorSearch(ctx context.Context, tenantID string, accountType AccountType, vec []float32) ([]ScoredOfferTerm, error) {
	if vs, ok := s.store.(VectorSearcher); ok {
		hits, err := vs.SearchOfferTerms(ctx, tenantID, accountType, vec, s.searchLimit)
		if err != nil {
			return nil, fmt.Errorf("vector search offer terms: %w", err)
		}
		return stripVectors(hits), nil
	}
	terms, err := s.store.ListOfferTerms(ctx, tenantID, accountType)
	if err != nil {
		return nil, fmt.Errorf("list offer terms: %w", err)
	}
	return stripVectors(RankByVector(terms, vec, s.searchLimit)), nil
}

// GetOfferDetails returns an offer.
func (s *Service) GetOfferDetails(ctx context.Context, tenantID, offerID string) (*Offer, error) {
	o, err := s.store.GetOffer(ctx, tenantID, offerID)
	if err != nil {
		return nil, fmt.Errorf("get offer %s: %w", offerID, err)
	}
	return o, nil
}

// CalculateMonthlyPayment returns the annuity payment for a loan at a 5%
// annual rate, rounded to cents.
func (s *Service) CalculateMonthlyPayment(loanAmount float64, years int) (float64, error) {
	if loanAmount <= 0 || years <= 0 {
		return 0, fmt.Errorf("loan amount and years must be positive")
	}
	monthlyRate := loanAnnualRate / 12
	n := float64(years * 12)
	factor := math.Pow(1+monthlyRate, n)
	payment := loanAmount * monthlyRate * factor / (factor - 1)
	return math.Round(payment*100) / 100, nil
}

// AddDocument validates raw JSON and stores it in container.
func (s *Service) AddDocument(ctx context.Context, container Container, raw []byte) error {
	doc, err := ParseDocument(raw)
	if err != nil {
		return err
	}
	if err := s.store.PutDocument(ctx, container, doc); err != nil {
		return fmt.Errorf("store document in %s: %w", container, err)
	}
	return nil
}

// endOfDay widens a date-only bound to the last instant of that day.
func endOfDay(t time.Time) time.Time {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Add(24*time.Hour - time.Nanosecond)
	}
	return t
}
