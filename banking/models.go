package banking

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document type discriminators.
const (
	TypeBankUser        = "BankUser"
	TypeBankAccount     = "BankAccount"
	TypeBankTransaction = "BankTransaction"
	TypeServiceRequest  = "ServiceRequest"
	TypeOffer           = "Offer"
	TypeOfferTerm       = "Term"
)

// AccountType classifies bank accounts and offers.
type AccountType string

// Known account types.
const (
	AccountTypeSavings    AccountType = "Savings"
	AccountTypeCreditCard AccountType = "CreditCard"
	AccountTypeChecking   AccountType = "Checking"
	AccountTypeLoan       AccountType = "Loan"
	AccountTypeMortgage   AccountType = "Mortgage"
	AccountTypeInvestment AccountType = "Investment"
)

// AccountTypes lists all known account types.
var AccountTypes = []AccountType{
	AccountTypeSavings, AccountTypeCreditCard, AccountTypeChecking,
	AccountTypeLoan, AccountTypeMortgage, AccountTypeInvestment,
}

// ParseAccountType validates s against the known account types.
func ParseAccountType(s string) (AccountType, error) {
	for _, t := range AccountTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus int

// Account states.
const (
	AccountStatusActive AccountStatus = iota
	AccountStatusDormant
	AccountStatusLocked
	AccountStatusClosed
	AccountStatusFrozen
	AccountStatusPendingApproval
	AccountStatusSuspended
	AccountStatusRestricted
)

var accountStatusNames = [...]string{"Active", "Dormant", "Locked", "Closed", "Frozen", "PendingApproval", "Suspended", "Restricted"}

// String implements fmt.Stringer.
func (s AccountStatus) String() string {
	if s < 0 || int(s) >= len(accountStatusNames) {
		return fmt.Sprintf("AccountStatus(%d)", int(s))
	}
	return accountStatusNames[s]
}

// CardType is the card network of a card account.
type CardType string

// Card networks.
const (
	CardTypeVisa       CardType = "Visa"
	CardTypeMasterCard CardType = "MasterCard"
)

// ServiceRequestType classifies service requests.
type ServiceRequestType int

// Service request types.
const (
	ServiceRequestComplaint ServiceRequestType = iota
	ServiceRequestFundTransfer
	ServiceRequestFulfilment
	ServiceRequestTeleBankerCallBack
)

var serviceRequestTypeNames = [...]string{"Complaint", "FundTransfer", "Fulfilment", "TeleBankerCallBack"}

// String implements fmt.Stringer.
func (t ServiceRequestType) String() string {
	if t < 0 || int(t) >= len(serviceRequestTypeNames) {
		return fmt.Sprintf("ServiceRequestType(%d)", int(t))
	}
	return serviceRequestTypeNames[t]
}

// ParseServiceRequestType accepts the type name.
func ParseServiceRequestType(s string) (ServiceRequestType, error) {
	for i, name := range serviceRequestTypeNames {
		if name == s {
			return ServiceRequestType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown service request type %q", s)
}

// BankUser is a registered bank customer.
type BankUser struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	TenantID    string         `json:"tenantId"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	PhoneNumber string         `json:"phoneNumber"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// BankAccount is a customer account or card.
type BankAccount struct {
	ID               string        `json:"id"`
	Type             string        `json:"type"`
	TenantID         string        `json:"tenantId"`
	UserID           string        `json:"userId"`
	Name             string        `json:"name"`
	AccountType      AccountType   `json:"accountType"`
	CardNumber       int64         `json:"cardNumber,omitempty"`
	AccountStatus    AccountStatus `json:"accountStatus"`
	CardType         CardType      `json:"cardType,omitempty"`
	Balance          int64         `json:"balance"`
	Limit            int64         `json:"limit"`
	InterestRate     int           `json:"interestRate"`
	ShortDescription string        `json:"shortDescription"`
}

// BankTransaction is a single debit or credit on an account.
type BankTransaction struct {
	ID                  string    `json:"id"`
	Type                string    `json:"type"`
	TenantID            string    `json:"tenantId"`
	AccountID           string    `json:"accountId"`
	DebitAmount         int64     `json:"debitAmount"`
	CreditAmount        int64     `json:"creditAmount"`
	AccountBalance      int64     `json:"accountBalance"`
	Details             string    `json:"details"`
	TransactionDateTime time.Time `json:"transactionDateTime"`
}

// ServiceRequest is a customer request awaiting fulfilment by bank staff.
type ServiceRequest struct {
	ID                 string             `json:"id"`
	Type               string             `json:"type"`
	TenantID           string             `json:"tenantId"`
	UserID             string             `json:"userId"`
	AccountID          string             `json:"accountId"`
	RequestedOn        time.Time          `json:"requestedOn"`
	ScheduledDateTime  time.Time          `json:"scheduledDateTime"`
	SRType             ServiceRequestType `json:"SRType"`
	RecipientEmail     string             `json:"recipientEmail,omitempty"`
	RecipientPhone     string             `json:"recipientPhone,omitempty"`
	DebitAmount        float64            `json:"debitAmount"`
	IsComplete         bool               `json:"isComplete"`
	RequestAnnotations []string           `json:"requestAnnotations"`
	FulfilmentDetails  map[string]string  `json:"fulfilmentDetails,omitempty"`
}

// Offer is a bank product that can be sold to customers.
type Offer struct {
	ID                      string            `json:"id"`
	Type                    string            `json:"type"`
	TenantID                string            `json:"tenantId"`
	OfferID                 string            `json:"offerId"`
	Name                    string            `json:"name"`
	Description             string            `json:"description"`
	AccountType             AccountType       `json:"accountType"`
	EligibilityConditions   []string          `json:"eligibilityConditions,omitempty"`
	PrerequisiteSubmissions map[string]string `json:"prerequisiteSubmissions,omitempty"`
}

// OfferTerm is a searchable clause of an offer. Vector holds its embedding.
type OfferTerm struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	TenantID    string      `json:"tenantId"`
	OfferID     string      `json:"offerId"`
	Name        string      `json:"name"`
	Text        string      `json:"text"`
	AccountType AccountType `json:"accountType"`
	Vector      []float32   `json:"vector,omitempty"`
}

// ScoredOfferTerm is a search hit.
type ScoredOfferTerm struct {
	OfferTerm
	Score float64 `json:"similarityScore"`
}

// Document is a raw JSON document routed to a container by the seeding endpoints.
type Document map[string]any

// ParseDocument decodes raw JSON and checks that it carries a non-empty id.
func ParseDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if id, _ := doc["id"].(string); id == "" {
		return nil, fmt.Errorf("%w: document must contain an id", ErrInvalidDocument)
	}
	return doc, nil
}

// StringField returns the string value of key or "".
func (d Document) StringField(key string) string {
	s, _ := d[key].(string)
	return s
}
