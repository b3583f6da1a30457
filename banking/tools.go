package banking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/tool"
)

// Tool names exposed to the agents.
const (
	ToolGetLoggedInUser              = "GetLoggedInUser"
	ToolGetCurrentDateTime           = "GetCurrentDateTime"
	ToolGetUserRegisteredAccounts    = "GetUserRegisteredAccounts"
	ToolIsAccountRegisteredToUser    = "IsAccountRegisteredToUser"
	ToolCheckPendingServiceRequests  = "CheckPendingServiceRequests"
	ToolAddTeleBankerRequest         = "AddTeleBankerRequest"
	ToolGetTeleBankerSlots           = "GetTeleBankerSlots"
	ToolCreateComplaint              = "CreateComplaint"
	ToolUpdateExistingServiceRequest = "UpdateExistingServiceRequest"
	ToolRegisterAccount              = "RegisterAccount"
	ToolSearchOfferTerms             = "SearchOfferTerms"
	ToolGetOfferDetails              = "GetOfferDetails"
	ToolCalculateMonthlyPayment      = "CalculateMonthlyPayment"
	ToolAddFundTransferRequest       = "AddFundTransferRequest"
	ToolGetTransactionHistory        = "GetTransactionHistory"
)

type accountArgs struct {
	AccountID string `json:"accountId" description:"Id of the bank account"`
}

type pendingRequestsArgs struct {
	AccountID string `json:"accountId,omitempty" description:"Id of the bank account, empty for all accounts"`
	SRType    string `json:"srType,omitempty" description:"Type of service request" enum:"Complaint,FundTransfer,Fulfilment,TeleBankerCallBack"`
}

type teleBankerRequestArgs struct {
	AccountID         string `json:"accountId" description:"Id of the bank account"`
	RequestAnnotation string `json:"requestAnnotation" description:"What the customer wants to discuss"`
	CallbackTime      string `json:"callbackTime" description:"Requested call-back time in RFC 3339 format"`
}

type teleBankerSlotsArgs struct {
	AccountType string `json:"accountType" description:"Account type the telebanker specialises in" enum:"Savings,CreditCard,Checking,Loan,Mortgage,Investment"`
}

type complaintArgs struct {
	AccountID         string `json:"accountId" description:"Id of the bank account"`
	RequestAnnotation string `json:"requestAnnotation" description:"Details of the complaint"`
}

type updateRequestArgs struct {
	RequestID         string `json:"requestId" description:"Id of the service request"`
	AccountID         string `json:"accountId" description:"Id of the bank account"`
	RequestAnnotation string `json:"requestAnnotation" description:"Additional details to record"`
}

type registerAccountArgs struct {
	AccountType       string            `json:"accountType" description:"Type of account to open" enum:"Savings,CreditCard,Checking,Loan,Mortgage,Investment"`
	FulfilmentDetails map[string]string `json:"fulfilmentDetails" description:"Details collected from the customer keyed by prerequisite name"`
}

type searchOfferArgs struct {
	AccountType            string `json:"accountType" description:"Account type of the offer" enum:"Savings,CreditCard,Checking,Loan,Mortgage,Investment"`
	RequirementDescription string `json:"requirementDescription" description:"What the customer is looking for"`
}

type offerArgs struct {
	OfferID string `json:"offerId" description:"Id of the offer"`
}

type monthlyPaymentArgs struct {
	LoanAmount float64 `json:"loanAmount" description:"Principal of the loan"`
	Years      int     `json:"years" description:"Duration of the loan in years"`
}

type fundTransferArgs struct {
	DebitAccountID       string  `json:"debitAccountId" description:"Account the money is taken from"`
	Amount               float64 `json:"amount" description:"Amount to transfer"`
	RequestAnnotation    string  `json:"requestAnnotation" description:"Purpose of the transfer"`
	RecipientPhoneNumber string  `json:"recipientPhoneNumber,omitempty" description:"Phone number of the recipient"`
	RecipientEmailID     string  `json:"recipientEmailId,omitempty" description:"Email address of the recipient"`
}

type transactionHistoryArgs struct {
	AccountID string `json:"accountId" description:"Id of the bank account"`
	StartDate string `json:"startDate" description:"Start of the period, RFC 3339 or YYYY-MM-DD"`
	EndDate   string `json:"endDate" description:"End of the period, RFC 3339 or YYYY-MM-DD"`
}

// CommonTools are available to every agent.
func CommonTools(svc *Service) []tool.Tool {
	return []tool.Tool{
		tool.NewFunctionTool(ToolGetLoggedInUser, "Get the current logged-in bank user", nil,
			func(tc *core.ToolContext, _ map[string]any) (any, error) {
				u, err := svc.GetUser(tc.Context(), tc.TenantID(), tc.UserID())
				return lookup(u, err)
			}),
		tool.NewFunctionTool(ToolGetCurrentDateTime, "Get the current date and time in UTC", nil,
			func(_ *core.ToolContext, _ map[string]any) (any, error) {
				return svc.now().UTC().Format("2006-01-02 15:04:05"), nil
			}),
		tool.NewFunctionTool(ToolGetUserRegisteredAccounts, "Get the accounts registered to the logged-in user", nil,
			func(tc *core.ToolContext, _ map[string]any) (any, error) {
				return svc.GetUserRegisteredAccounts(tc.Context(), tc.TenantID(), tc.UserID())
			}),
	}
}

// CustomerSupportTools handle complaints, call-backs and request follow-ups.
func CustomerSupportTools(svc *Service) []tool.Tool {
	tools := CommonTools(svc)
	return append(tools,
		tool.NewFunctionToolFromStruct(ToolIsAccountRegisteredToUser, "Check if account is registered to user", accountArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				return svc.IsAccountRegisteredToUser(tc.Context(), tc.TenantID(), tc.UserID(), tool.StringArg(args, "accountId"))
			}),
		tool.NewFunctionToolFromStruct(ToolCheckPendingServiceRequests, "Search the database for pending requests", pendingRequestsArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				var typ *ServiceRequestType
				if s := tool.StringArg(args, "srType"); s != "" {
					t, err := ParseServiceRequestType(s)
					if err != nil {
						return nil, tool.NewToolError(ToolCheckPendingServiceRequests, err.Error(), tool.CodeValidation)
					}
					typ = &t
				}
				reqs, err := svc.GetServiceRequests(tc.Context(), tc.TenantID(), tool.StringArg(args, "accountId"), tc.UserID(), typ)
				if err != nil {
					return nil, err
				}
				pending := make([]ServiceRequest, 0, len(reqs))
				for _, r := range reqs {
					if !r.IsComplete {
						pending = append(pending, r)
					}
				}
				return pending, nil
			}),
		tool.NewFunctionToolFromStruct(ToolAddTeleBankerRequest, "Adds a telebanker callback request for the specified account", teleBankerRequestArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				at, err := tool.TimeArg(args, "callbackTime")
				if err != nil {
					return nil, tool.NewToolError(ToolAddTeleBankerRequest, err.Error(), tool.CodeValidation)
				}
				req, err := svc.CreateTeleBankerRequest(tc.Context(), tc.TenantID(), tool.StringArg(args, "accountId"), tc.UserID(), tool.StringArg(args, "requestAnnotation"), at)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("Request Created with id %s", req.ID), nil
			}),
		tool.NewFunctionToolFromStruct(ToolGetTeleBankerSlots, "Get the available slots of telebankers specialising in an account type", teleBankerSlotsArgs{},
			func(_ *core.ToolContext, _ map[string]any) (any, error) {
				return svc.GetTeleBankerAvailability(), nil
			}),
		tool.NewFunctionToolFromStruct(ToolCreateComplaint, "Create new complaint", complaintArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				req, err := svc.CreateComplaint(tc.Context(), tc.TenantID(), tool.StringArg(args, "accountId"), tc.UserID(), tool.StringArg(args, "requestAnnotation"))
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("Complaint registered with id %s", req.ID), nil
			}),
		tool.NewFunctionToolFromStruct(ToolUpdateExistingServiceRequest, "Updates an existing service request with additional details", updateRequestArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				err := svc.AddServiceRequestDescription(tc.Context(), tc.TenantID(), tool.StringArg(args, "accountId"), tool.StringArg(args, "requestId"), tool.StringArg(args, "requestAnnotation"))
				if errors.Is(err, core.ErrNotFound) {
					return nil, tool.NewToolError(ToolUpdateExistingServiceRequest, err.Error(), tool.CodeNotFound)
				}
				if err != nil {
					return nil, err
				}
				return true, nil
			}),
	)
}

// SalesTools search offers and register new accounts.
func SalesTools(svc *Service) []tool.Tool {
	tools := CommonTools(svc)
	return append(tools,
		tool.NewFunctionToolFromStruct(ToolSearchOfferTerms, "Search offer terms matching the customer requirement", searchOfferArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				at, err := ParseAccountType(tool.StringArg(args, "accountType"))
				if err != nil {
					return nil, tool.NewToolError(ToolSearchOfferTerms, err.Error(), tool.CodeValidation)
				}
				return svc.SearchOfferTerms(tc.Context(), tc.TenantID(), at, tool.StringArg(args, "requirementDescription"))
			}),
		tool.NewFunctionToolFromStruct(ToolGetOfferDetails, "Get the details of an offer", offerArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				o, err := svc.GetOfferDetails(tc.Context(), tc.TenantID(), tool.StringArg(args, "offerId"))
				return lookup(o, err)
			}),
		tool.NewFunctionToolFromStruct(ToolRegisterAccount, "Register a new account", registerAccountArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				at, err := ParseAccountType(tool.StringArg(args, "accountType"))
				if err != nil {
					return nil, tool.NewToolError(ToolRegisterAccount, err.Error(), tool.CodeValidation)
				}
				details := tool.StringMapArg(args, "fulfilmentDetails")
				if details == nil {
					details = map[string]string{}
				}
				details["accountType"] = string(at)
				req, err := svc.CreateFulfilmentRequest(tc.Context(), tc.TenantID(), "", tc.UserID(), "", details)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("Request Created with id %s", req.ID), nil
			}),
		tool.NewFunctionToolFromStruct(ToolCalculateMonthlyPayment, "Calculate the monthly payment of a loan at the current 5% annual rate", monthlyPaymentArgs{},
			func(_ *core.ToolContext, args map[string]any) (any, error) {
				years, err := tool.IntArg(args, "years")
				if err != nil {
					return nil, tool.NewToolError(ToolCalculateMonthlyPayment, err.Error(), tool.CodeValidation)
				}
				p, err := svc.CalculateMonthlyPayment(tool.NumberArg(args, "loanAmount"), years)
				if err != nil {
					return nil, tool.NewToolError(ToolCalculateMonthlyPayment, err.Error(), tool.CodeValidation)
				}
				return p, nil
			}),
	)
}

// TransactionTools create transfers and report account history.
func TransactionTools(svc *Service) []tool.Tool {
	tools := CommonTools(svc)
	return append(tools,
		tool.NewFunctionToolFromStruct(ToolAddFundTransferRequest, "Adds a new fund transfer request", fundTransferArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				phone := tool.StringArg(args, "recipientPhoneNumber")
				email := tool.StringArg(args, "recipientEmailId")
				if strings.TrimSpace(phone) == "" && strings.TrimSpace(email) == "" {
					return nil, tool.NewToolError(ToolAddFundTransferRequest, "a recipient phone number or email is required", tool.CodeValidation)
				}
				req, err := svc.CreateFundTransferRequest(tc.Context(), tc.TenantID(), tool.StringArg(args, "debitAccountId"), tc.UserID(),
					tool.StringArg(args, "requestAnnotation"), email, phone, tool.NumberArg(args, "amount"))
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("Request Created with id %s", req.ID), nil
			}),
		tool.NewFunctionToolFromStruct(ToolGetTransactionHistory, "Get the transactions of an account between two dates", transactionHistoryArgs{},
			func(tc *core.ToolContext, args map[string]any) (any, error) {
				start, err := tool.TimeArg(args, "startDate")
				if err != nil {
					return nil, tool.NewToolError(ToolGetTransactionHistory, err.Error(), tool.CodeValidation)
				}
				end, err := tool.TimeArg(args, "endDate")
				if err != nil {
					return nil, tool.NewToolError(ToolGetTransactionHistory, err.Error(), tool.CodeValidation)
				}
				return svc.GetTransactions(tc.Context(), tc.TenantID(), tool.StringArg(args, "accountId"), start, endOfDay(end))
			}),
	)
}

// CoordinatorTools are the common tools plus a hand-off tool per specialist.
func CoordinatorTools(svc *Service, specialists ...string) []tool.Tool {
	tools := CommonTools(svc)
	for _, name := range specialists {
		tools = append(tools, tool.NewTransferToAgentTool(name))
	}
	return tools
}

// lookup maps a missing document onto a NOT_FOUND tool error the model can read.
func lookup[T any](v *T, err error) (any, error) {
	if errors.Is(err, core.ErrNotFound) {
		return nil, &tool.ToolError{Message: err.Error(), Code: tool.CodeNotFound}
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
