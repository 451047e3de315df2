// Package executor evaluates a parsed query against one index generation.
// Boolean structure is resolved with merge-joins over sorted document ID
// lists; the surviving candidates are then scored and the best k kept.
package executor

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Target is the generation a query runs against. Index returns an error
// matching ErrIndexGenerationMismatch once the generation is retired.
type Target interface {
	ID() uint64
	Index() (*index.Index, error)
}

type SearchResult struct {
	Query      string             `json:"query"`
	Generation uint64             `json:"generation"`
	TotalHits  int                `json:"total_hits"`
	Results    []ranker.ScoredDoc `json:"results"`
	TermStats  map[string]int     `json:"term_stats,omitempty"`
	Cached     bool               `json:"cached,omitempty"`
}

type Executor struct {
	scorer ranker.Scorer
	logger *slog.Logger
}

func New(scorer ranker.Scorer) *Executor {
	if scorer == nil {
		scorer = ranker.BM25Scorer{}
	}
	return &Executor{
		scorer: scorer,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Scorer returns the scoring strategy in use.
func (e *Executor) Scorer() ranker.Scorer {
	return e.scorer
}

// Execute returns at most limit results ordered by score descending, then
// document ID ascending. A query with no matches returns an empty result,
// not an error.
func (e *Executor) Execute(ctx context.Context, q parser.Query, target Target, limit int) (*SearchResult, error) {
	if limit <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidLimit, http.StatusBadRequest, "limit must be positive, got %d", limit)
	}
	result := &SearchResult{
		Query:      q.Raw,
		Generation: target.ID(),
		Results:    []ranker.ScoredDoc{},
	}
	idx, err := target.Index()
	if err != nil {
		return nil, err
	}
	if q.IsEmpty() {
		return result, nil
	}

	start := time.Now()
	ev := &evaluator{idx: idx, st: &stepper{ctx: ctx}}
	candidates, err := ev.eval(q.Root)
	if err != nil {
		return nil, err
	}
	result.TotalHits = len(candidates)
	if len(candidates) == 0 {
		return result, nil
	}

	scored, stats, err := e.score(ev, candidates, q.PositiveTerms())
	if err != nil {
		return nil, err
	}
	topk := merger.NewTopK(limit)
	for _, doc := range scored {
		topk.Push(doc)
	}
	result.Results = topk.Results()
	result.TermStats = stats

	e.logger.Debug("query executed",
		"query", q.String(),
		"generation", result.Generation,
		"candidates", len(candidates),
		"returned", len(result.Results),
		"merge_steps", ev.st.steps,
		"duration", time.Since(start),
	)
	return result, nil
}

type evaluator struct {
	idx *index.Index
	st  *stepper
}

func (ev *evaluator) termDocs(field, term string) []string {
	if field == "" {
		return ev.idx.DocIDs(term)
	}
	return ev.idx.Postings(term).Field(field).DocIDs()
}

func (ev *evaluator) eval(n parser.Node) ([]string, error) {
	if err := ev.st.ctx.Err(); err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case parser.Term:
		return ev.termDocs(n.Field, n.Value), nil
	case parser.Phrase:
		lists := make([][]string, len(n.Terms))
		for i, t := range n.Terms {
			lists[i] = ev.termDocs(n.Field, t)
		}
		return ev.intersectAll(lists)
	case parser.And:
		return ev.evalAnd(n)
	case parser.Or:
		var acc []string
		for _, c := range n.Children {
			docs, err := ev.eval(c)
			if err != nil {
				return nil, err
			}
			if acc, err = union(ev.st, acc, docs); err != nil {
				return nil, err
			}
		}
		return acc, nil
	case parser.Not:
		docs, err := ev.eval(n.Child)
		if err != nil {
			return nil, err
		}
		return difference(ev.st, ev.idx.AllDocIDs(), docs)
	case parser.Empty, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported query node %T", n)
	}
}

// evalAnd intersects the positive children and subtracts the negated
// ones, so "a AND NOT b" never materialises the complement of b.
func (ev *evaluator) evalAnd(n parser.And) ([]string, error) {
	var positive [][]string
	var negative []string
	for _, c := range n.Children {
		if not, ok := c.(parser.Not); ok {
			docs, err := ev.eval(not.Child)
			if err != nil {
				return nil, err
			}
			if negative, err = union(ev.st, negative, docs); err != nil {
				return nil, err
			}
			continue
		}
		docs, err := ev.eval(c)
		if err != nil {
			return nil, err
		}
		positive = append(positive, docs)
	}

	base := ev.idx.AllDocIDs()
	if len(positive) > 0 {
		var err error
		if base, err = ev.intersectAll(positive); err != nil {
			return nil, err
		}
	}
	if len(negative) == 0 {
		return base, nil
	}
	return difference(ev.st, base, negative)
}

// intersectAll joins the shortest lists first so intermediate results stay
// small.
func (ev *evaluator) intersectAll(lists [][]string) ([]string, error) {
	if len(lists) == 0 {
		return nil, nil
	}
	slices.SortStableFunc(lists, func(a, b []string) int { return cmp.Compare(len(a), len(b)) })
	acc := lists[0]
	for _, l := range lists[1:] {
		if len(acc) == 0 {
			return acc, nil
		}
		var err error
		if acc, err = intersect(ev.st, acc, l); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// score walks each positive term's postings alongside the candidate list.
func (e *Executor) score(ev *evaluator, candidates []string, terms []parser.FieldTerm) ([]ranker.ScoredDoc, map[string]int, error) {
	params := ranker.RankParams{
		TotalDocs:    ev.idx.DocumentCount(),
		AvgDocLength: ev.idx.AverageDocumentLength(),
	}
	docs := make([]ranker.ScoredDoc, len(candidates))
	for i, id := range candidates {
		docs[i] = ranker.ScoredDoc{DocID: id}
	}
	stats := make(map[string]int, len(terms))

	for _, ft := range terms {
		postings := ev.idx.Postings(ft.Term)
		docFreq := ev.idx.DocFreq(ft.Term)
		label := ft.Term
		if ft.Field != "" {
			postings = postings.Field(ft.Field)
			docFreq = len(postings.DocIDs())
			label = ft.Field + ":" + ft.Term
		}
		stats[label] = docFreq
		if len(postings) == 0 {
			continue
		}

		j := 0
		for i := range docs {
			id := docs[i].DocID
			for j < len(postings) && postings[j].DocID < id {
				if err := ev.st.step(); err != nil {
					return nil, nil, err
				}
				j++
			}
			tf := 0
			for j < len(postings) && postings[j].DocID == id {
				tf += postings[j].Frequency
				j++
			}
			if tf == 0 {
				continue
			}
			docs[i].Score += e.scorer.Score(ranker.TermMatch{
				TermFreq:  tf,
				DocFreq:   docFreq,
				DocLength: ev.idx.DocLength(id),
			}, params)
			docs[i].MatchedTerms = append(docs[i].MatchedTerms, label)
		}
	}
	for i := range docs {
		docs[i].Score = ranker.Round(docs[i].Score)
	}
	return docs, stats, nil
}
