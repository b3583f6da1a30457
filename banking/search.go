package banking

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// RankByVector orders terms by cosine similarity to vec and keeps the best limit.
// Terms without an embedding are skipped.
func RankByVector(terms []OfferTerm, vec []float32, limit int) []ScoredOfferTerm {
	hits := make([]ScoredOfferTerm, 0, len(terms))
	for _, t := range terms {
		if len(t.Vector) == 0 {
			continue
		}
		hits = append(hits, ScoredOfferTerm{OfferTerm: t, Score: CosineSimilarity(t.Vector, vec)})
	}
	return topN(hits, limit)
}

// RankByKeywords orders terms by the share of requirement words found in
// their name and text.
func RankByKeywords(terms []OfferTerm, requirement string, limit int) []ScoredOfferTerm {
	query := words(requirement)
	hits := make([]ScoredOfferTerm, 0, len(terms))
	for _, t := range terms {
		var score float64
		if len(query) > 0 {
			doc := words(t.Name + " " + t.Text)
			matched := 0
			for w := range query {
				if _, ok := doc[w]; ok {
					matched++
				}
			}
			score = float64(matched) / float64(len(query))
		}
		hits = append(hits, ScoredOfferTerm{OfferTerm: t, Score: score})
	}
	return topN(hits, limit)
}

// CosineSimilarity of two vectors; 0 when either is empty or lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func topN(hits []ScoredOfferTerm, limit int) []ScoredOfferTerm {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func stripVectors(hits []ScoredOfferTerm) []ScoredOfferTerm {
	for i := range hits {
		hits[i].Vector = nil
	}
	return hits
}

func words(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}
