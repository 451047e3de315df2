// Package ranker scores matched documents. Scorers are strategies chosen
// by name from configuration; every scorer is a pure function of its
// inputs, so a (query, document, generation) triple always scores the
// same.
package ranker

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Scorer names accepted by New.
const (
	BM25   = "bm25"
	TFNorm = "tf"
)

const (
	k1 = 1.2
	b  = 0.75
)

type ScoredDoc struct {
	DocID        string   `json:"doc_id"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// RankParams are the generation-wide statistics a scorer may use.
type RankParams struct {
	TotalDocs    int
	AvgDocLength float64
}

// TermMatch describes one query term's occurrences in one document.
type TermMatch struct {
	TermFreq  int
	DocFreq   int
	DocLength int
}

// Scorer computes the contribution of one matched term to a document's
// score. Implementations must not decrease when TermFreq grows and all
// else is equal.
type Scorer interface {
	Name() string
	Score(m TermMatch, params RankParams) float64
}

// New returns the scorer registered under name. An empty name selects BM25.
func New(name string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BM25:
		return BM25Scorer{}, nil
	case TFNorm:
		return TFNormScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}

// BM25Scorer is Okapi BM25 with k1=1.2 and b=0.75.
type BM25Scorer struct{}

func (BM25Scorer) Name() string { return BM25 }

func (BM25Scorer) Score(m TermMatch, params RankParams) float64 {
	idf := computeIDF(params.TotalDocs, m.DocFreq)
	return idf * computeTFNorm(float64(m.TermFreq), float64(m.DocLength), params.AvgDocLength)
}

// TFNormScorer is term frequency divided by document length.
type TFNormScorer struct{}

func (TFNormScorer) Name() string { return TFNorm }

func (TFNormScorer) Score(m TermMatch, _ RankParams) float64 {
	if m.DocLength <= 0 {
		return float64(m.TermFreq)
	}
	return float64(m.TermFreq) / float64(m.DocLength)
}

// computeIDF uses the "+1 inside the log" form, which stays positive even
// for terms present in every document.
func computeIDF(totalDocs int, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// Round trims a score to four decimals so float noise from summation
// order cannot reorder results.
func Round(score float64) float64 {
	return math.Round(score*10000) / 10000
}

// Compare orders by score descending, then document ID ascending.
func Compare(x, y ScoredDoc) int {
	if x.Score != y.Score {
		return cmp.Compare(y.Score, x.Score)
	}
	return cmp.Compare(x.DocID, y.DocID)
}

// Sort puts docs in result order.
func Sort(docs []ScoredDoc) {
	slices.SortFunc(docs, Compare)
}
