// Package cosmos implements the chat and banking stores on Azure Cosmos DB.
//
// Container layout and partition keys:
//
//	chat         [tenantId, userId, sessionId]  sessions, messages, debug logs
//	userdata     [tenantId]                     bank users
//	accountdata  [tenantId, accountId]          accounts, transactions
//	requestdata  [tenantId, accountId]          service requests
//	offerdata    [tenantId]                     offers, offer terms (with vectors)
//
// Session writes of one completion go through a transactional batch on the
// session partition.
package cosmos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/logging"
)

// Options configures the store.
type Options struct {
	Database          string
	ChatContainer     string
	UserContainer     string
	AccountsContainer string
	RequestContainer  string
	OfferContainer    string
	// MinSimilarity drops vector search hits below this score.
	MinSimilarity float64
	Logger        logging.Logger
}

func defaultOptions() Options {
	return Options{
		Database:          "MultiAgentBanking",
		ChatContainer:     "Chat",
		UserContainer:     "UserData",
		AccountsContainer: "AccountsData",
		RequestContainer:  "RequestData",
		OfferContainer:    "OfferData",
		MinSimilarity:     0.075,
	}
}

// Store implements core.ChatStore, banking.Store and banking.VectorSearcher.
type Store struct {
	chat     *azcosmos.ContainerClient
	users    *azcosmos.ContainerClient
	accounts *azcosmos.ContainerClient
	requests *azcosmos.ContainerClient
	offers   *azcosmos.ContainerClient

	minSimilarity float64
	logger        logging.Logger
}

// New creates a store from an existing client. Containers must already exist.
func New(client *azcosmos.Client, optFns ...func(o *Options)) (*Store, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{minSimilarity: opts.MinSimilarity, logger: logging.OrNoOp(opts.Logger)}
	for _, c := range []struct {
		name string
		dst  **azcosmos.ContainerClient
	}{
		{opts.ChatContainer, &s.chat},
		{opts.UserContainer, &s.users},
		{opts.AccountsContainer, &s.accounts},
		{opts.RequestContainer, &s.requests},
		{opts.OfferContainer, &s.offers},
	} {
		cc, err := client.NewContainer(opts.Database, c.name)
		if err != nil {
			return nil, fmt.Errorf("container %s: %w", c.name, err)
		}
		*c.dst = cc
	}
	return s, nil
}

// NewFromEndpoint connects with an account key or, when key is empty, with
// the default Azure credential chain.
func NewFromEndpoint(endpoint, key string, optFns ...func(o *Options)) (*Store, error) {
	var (
		client *azcosmos.Client
		err    error
	)
	if key != "" {
		cred, kerr := azcosmos.NewKeyCredential(key)
		if kerr != nil {
			return nil, fmt.Errorf("cosmos key: %w", kerr)
		}
		client, err = azcosmos.NewClientWithKey(endpoint, cred, nil)
	} else {
		var cred azcore.TokenCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}
		client, err = azcosmos.NewClient(endpoint, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("cosmos client: %w", err)
	}
	return New(client, optFns...)
}

// partitionKey builds a (hierarchical) partition key from its values.
func partitionKey(values ...string) azcosmos.PartitionKey {
	if len(values) == 1 {
		return azcosmos.NewPartitionKeyString(values[0])
	}
	pk := azcosmos.NewPartitionKey()
	for _, v := range values {
		pk = pk.AppendString(v)
	}
	return pk
}

// crossPartition scopes a query to every partition of a container.
var crossPartition = azcosmos.NewPartitionKey()

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// wrap annotates err and maps 404 onto core.ErrNotFound.
func wrap(what string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func params(kv ...any) []azcosmos.QueryParameter {
	out := make([]azcosmos.QueryParameter, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, azcosmos.QueryParameter{Name: kv[i].(string), Value: kv[i+1]})
	}
	return out
}

func query[T any](ctx context.Context, c *azcosmos.ContainerClient, pk azcosmos.PartitionKey, q string, p []azcosmos.QueryParameter) ([]T, error) {
	pager := c.NewQueryItemsPager(q, pk, &azcosmos.QueryOptions{QueryParameters: p})
	out := []T{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode item: %w", err)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func read[T any](ctx context.Context, c *azcosmos.ContainerClient, pk azcosmos.PartitionKey, id, what string) (*T, error) {
	resp, err := c.ReadItem(ctx, pk, id, nil)
	if err != nil {
		return nil, wrap(what, err)
	}
	var v T
	if err := json.Unmarshal(resp.Value, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return &v, nil
}
