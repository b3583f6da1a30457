package cosmos

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ core.ChatStore         = (*Store)(nil)
	_ banking.Store          = (*Store)(nil)
	_ banking.VectorSearcher = (*Store)(nil)
)

func responseError(status int) *azcore.ResponseError {
	req, _ := http.NewRequest(http.MethodGet, "https://bank.documents.azure.com/dbs/MultiAgentBanking", nil)
	return &azcore.ResponseError{
		StatusCode: status,
		ErrorCode:  http.StatusText(status),
		RawResponse: &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(`{}`)),
			Request:    req,
		},
	}
}

func TestWrap_MapsNotFound(t *testing.T) {
	notFound := responseError(http.StatusNotFound)
	err := wrap("session s1", fmt.Errorf("read: %w", notFound))
	assert.ErrorIs(t, err, core.ErrNotFound)

	conflict := responseError(http.StatusConflict)
	err = wrap("session s1", conflict)
	assert.NotErrorIs(t, err, core.ErrNotFound)

	var respErr *azcore.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusConflict, respErr.StatusCode)
}

func TestServiceRequestQuery(t *testing.T) {
	complaint := banking.ServiceRequestComplaint

	tests := []struct {
		name   string
		filter banking.ServiceRequestFilter
		want   string
		params int
	}{
		{
			name:   "tenant only",
			filter: banking.ServiceRequestFilter{TenantID: "t1"},
			want:   `SELECT * FROM c WHERE c.type = @type AND c.tenantId = @tenantId`,
			params: 2,
		},
		{
			name:   "all fields",
			filter: banking.ServiceRequestFilter{TenantID: "t1", AccountID: "a1", UserID: "u1", Type: &complaint},
			want:   `SELECT * FROM c WHERE c.type = @type AND c.tenantId = @tenantId AND c.accountId = @accountId AND c.userId = @userId AND c.SRType = @srType`,
			params: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, p := serviceRequestQuery(tt.filter)
			assert.Equal(t, tt.want, q)
			assert.Len(t, p, tt.params)
		})
	}
}

func TestParams(t *testing.T) {
	p := params("@a", 1, "@b", "x")
	require.Len(t, p, 2)
	assert.Equal(t, "@a", p[0].Name)
	assert.Equal(t, 1, p[0].Value)
	assert.Equal(t, "x", p[1].Value)
}

func TestDefaultOptions(t *testing.T) {
	opts := defaultOptions()
	assert.Equal(t, "Chat", opts.ChatContainer)
	assert.InDelta(t, 0.075, opts.MinSimilarity, 1e-9)
}

func TestDeleteBatches(t *testing.T) {
	ids := []string{"s1"}
	for i := 0; i < 119; i++ {
		ids = append(ids, fmt.Sprintf("msg%03d", i))
	}

	chunks := deleteBatches(ids, "s1", maxBatchOperations)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 20)
	assert.NotContains(t, chunks[0], "s1")
	assert.Equal(t, "s1", chunks[1][len(chunks[1])-1])

	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), maxBatchOperations)
		total += len(c)
	}
	assert.Equal(t, 120, total)

	assert.Equal(t, [][]string{{"s1"}}, deleteBatches(nil, "s1", maxBatchOperations))
	assert.Equal(t, [][]string{{"a", "b"}, {"s1"}}, deleteBatches([]string{"s1", "a", "b"}, "s1", 2))
}
