package banking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestRankByVector_SkipsUnembeddedAndLimits(t *testing.T) {
	terms := []OfferTerm{
		{ID: "a", Vector: []float32{0, 1}},
		{ID: "b"},
		{ID: "c", Vector: []float32{1, 0}},
		{ID: "d", Vector: []float32{1, 1}},
	}
	hits := RankByVector(terms, []float32{1, 0}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, "c", hits[0].ID)
	assert.Equal(t, "d", hits[1].ID)
}

func TestRankByKeywords_IgnoresShortWords(t *testing.T) {
	terms := []OfferTerm{
		{ID: "a", Name: "Cashback", Text: "2 percent cashback on groceries"},
		{ID: "b", Name: "Fees", Text: "No annual fee"},
	}
	hits := RankByKeywords(terms, "is there cashback on groceries?", 0)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 2.0/3.0, hits[0].Score, 1e-9)
	assert.Zero(t, hits[1].Score)
}
