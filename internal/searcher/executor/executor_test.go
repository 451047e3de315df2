package executor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

type staticTarget struct {
	id  uint64
	idx *index.Index
	err error
}

func (s staticTarget) ID() uint64 { return s.id }

func (s staticTarget) Index() (*index.Index, error) { return s.idx, s.err }

func buildTarget(t testing.TB, docs map[string]map[string]string) staticTarget {
	t.Helper()
	m := index.NewMemoryIndex(tokenizer.Simple)
	for id, fields := range docs {
		for field, text := range fields {
			m.AddField(id, field, tokenizer.SimpleTokenizer{}.Tokenize(text))
		}
	}
	idx, err := m.Freeze()
	require.NoError(t, err)
	return staticTarget{id: 1, idx: idx}
}

func catDogTarget(t testing.TB) staticTarget {
	return buildTarget(t, map[string]map[string]string{
		"1": {"body": "the cat sat"},
		"2": {"body": "the dog sat"},
	})
}

func run(t *testing.T, target staticTarget, query string, limit int) *SearchResult {
	t.Helper()
	q, err := parser.New(tokenizer.SimpleTokenizer{}).Parse(query)
	require.NoError(t, err)
	res, err := New(ranker.BM25Scorer{}).Execute(context.Background(), q, target, limit)
	require.NoError(t, err)
	return res
}

func ids(res *SearchResult) []string {
	out := make([]string, len(res.Results))
	for i, r := range res.Results {
		out[i] = r.DocID
	}
	return out
}

func TestCatDogScenario(t *testing.T) {
	target := catDogTarget(t)

	assert.Equal(t, []string{"1", "2"}, ids(run(t, target, "sat", 10)))
	assert.Empty(t, ids(run(t, target, "cat AND dog", 10)))
	assert.Empty(t, ids(run(t, target, "", 10)))
}

func TestBooleanOperators(t *testing.T) {
	target := catDogTarget(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"cat", []string{"1"}},
		{"cat OR dog", []string{"1", "2"}},
		{"sat NOT dog", []string{"1"}},
		{"sat -cat", []string{"2"}},
		{"NOT cat", []string{"2"}},
		{"NOT zebra", []string{"1", "2"}},
		{"(cat OR dog) AND sat", []string{"1", "2"}},
		{"cat OR NOT sat", []string{"1"}},
		{"zebra", []string{}},
		{"body:cat", []string{"1"}},
		{"title:cat", []string{}},
		{`"the cat"`, []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := ids(run(t, target, tt.query, 10))
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestScoringOrder(t *testing.T) {
	target := buildTarget(t, map[string]map[string]string{
		"a": {"body": "go go go tutorial"},
		"b": {"body": "go tutorial"},
		"c": {"body": "python tutorial"},
		"d": {"body": "go"},
	})
	res := run(t, target, "go", 10)
	require.Len(t, res.Results, 3)
	// "a" has the highest frequency; "d" is shortest with one occurrence
	assert.Equal(t, "a", res.Results[0].DocID)
	for i := 1; i < len(res.Results); i++ {
		assert.GreaterOrEqual(t, res.Results[i-1].Score, res.Results[i].Score)
	}
	assert.Equal(t, []string{"go"}, res.Results[0].MatchedTerms)
	assert.Equal(t, 3, res.TermStats["go"])
}

func TestTieBreakByID(t *testing.T) {
	target := buildTarget(t, map[string]map[string]string{
		"b": {"body": "same words"},
		"a": {"body": "same words"},
		"c": {"body": "same words"},
	})
	assert.Equal(t, []string{"a", "b", "c"}, ids(run(t, target, "same", 10)))
}

func TestLimitAndTotalHits(t *testing.T) {
	docs := make(map[string]map[string]string)
	for i := range 50 {
		docs[fmt.Sprintf("doc-%02d", i)] = map[string]string{"body": "common term"}
	}
	res := run(t, buildTarget(t, docs), "common", 5)
	assert.Len(t, res.Results, 5)
	assert.Equal(t, 50, res.TotalHits)
	assert.Equal(t, []string{"doc-00", "doc-01", "doc-02", "doc-03", "doc-04"}, ids(res))
}

func TestEmptyIndex(t *testing.T) {
	idx, err := index.New(nil, nil, tokenizer.Simple)
	require.NoError(t, err)
	target := staticTarget{id: 1, idx: idx}

	for _, query := range []string{"cat", "NOT cat", "-cat", "cat OR dog", "cat AND NOT dog", "body:cat", `"the cat"`} {
		t.Run(query, func(t *testing.T) {
			res := run(t, target, query, 10)
			assert.Empty(t, res.Results)
			assert.Zero(t, res.TotalHits)
		})
	}
}

// randomQuery pairs query text with the set semantics it must have:
// terms match any field, field:term one field, NOT is the complement.
type randomQuery struct {
	text  string
	match func(doc map[string][]string) bool
}

var (
	randomWords  = []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"}
	randomFields = []string{"title", "body"}
)

func genQuery(r *rand.Rand, depth int) randomQuery {
	if depth == 0 || r.IntN(3) == 0 {
		word := randomWords[r.IntN(len(randomWords))]
		if r.IntN(2) == 0 {
			return randomQuery{text: word, match: func(doc map[string][]string) bool {
				for _, words := range doc {
					if containsWord(words, word) {
						return true
					}
				}
				return false
			}}
		}
		field := randomFields[r.IntN(len(randomFields))]
		return randomQuery{text: field + ":" + word, match: func(doc map[string][]string) bool {
			return containsWord(doc[field], word)
		}}
	}
	switch r.IntN(3) {
	case 0:
		child := genQuery(r, depth-1)
		return randomQuery{text: "NOT (" + child.text + ")", match: func(doc map[string][]string) bool {
			return !child.match(doc)
		}}
	case 1:
		a, b := genQuery(r, depth-1), genQuery(r, depth-1)
		return randomQuery{text: "(" + a.text + " AND " + b.text + ")", match: func(doc map[string][]string) bool {
			return a.match(doc) && b.match(doc)
		}}
	default:
		a, b := genQuery(r, depth-1), genQuery(r, depth-1)
		return randomQuery{text: "(" + a.text + " OR " + b.text + ")", match: func(doc map[string][]string) bool {
			return a.match(doc) || b.match(doc)
		}}
	}
}

func containsWord(words []string, word string) bool {
	for _, w := range words {
		if w == word {
			return true
		}
	}
	return false
}

func TestMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 42))
	corpus := make(map[string]map[string][]string)
	docs := make(map[string]map[string]string)
	for i := range 80 {
		id := fmt.Sprintf("d%03d", i)
		corpus[id] = map[string][]string{}
		docs[id] = map[string]string{}
		for _, field := range randomFields {
			n := 1 + r.IntN(4)
			words := make([]string, n)
			for j := range words {
				words[j] = randomWords[r.IntN(len(randomWords))]
			}
			corpus[id][field] = words
			docs[id][field] = strings.Join(words, " ")
		}
	}
	target := buildTarget(t, docs)

	for range 300 {
		q := genQuery(r, 3)
		var want []string
		for id, doc := range corpus {
			if q.match(doc) {
				want = append(want, id)
			}
		}
		res := run(t, target, q.text, len(corpus))
		assert.ElementsMatch(t, want, ids(res), q.text)
		assert.Equal(t, len(want), res.TotalHits, q.text)
		for i := 1; i < len(res.Results); i++ {
			prev, cur := res.Results[i-1], res.Results[i]
			ordered := prev.Score > cur.Score || (prev.Score == cur.Score && prev.DocID < cur.DocID)
			assert.True(t, ordered, "%s: %s before %s", q.text, prev.DocID, cur.DocID)
		}
	}
}

func TestInvalidLimit(t *testing.T) {
	q, err := parser.New(tokenizer.SimpleTokenizer{}).Parse("cat")
	require.NoError(t, err)
	_, err = New(nil).Execute(context.Background(), q, catDogTarget(t), 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidLimit)
}

func TestRetiredTarget(t *testing.T) {
	q, err := parser.New(tokenizer.SimpleTokenizer{}).Parse("cat")
	require.NoError(t, err)
	target := staticTarget{id: 3, err: apperrors.ErrIndexGenerationMismatch}
	_, err = New(nil).Execute(context.Background(), q, target, 10)
	assert.ErrorIs(t, err, apperrors.ErrIndexGenerationMismatch)
}

func TestCancelledContext(t *testing.T) {
	docs := make(map[string]map[string]string)
	for i := range 2000 {
		docs[fmt.Sprintf("doc-%04d", i)] = map[string]string{"body": fmt.Sprintf("alpha beta w%d", i%3)}
	}
	target := buildTarget(t, docs)
	q, err := parser.New(tokenizer.SimpleTokenizer{}).Parse("alpha OR beta")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(nil).Execute(ctx, q, target, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeterministic(t *testing.T) {
	target := catDogTarget(t)
	first := run(t, target, "sat OR cat", 10)
	for range 5 {
		assert.Equal(t, first.Results, run(t, target, "sat OR cat", 10).Results)
	}
}

func TestMergeHelpers(t *testing.T) {
	st := &stepper{ctx: context.Background()}
	a := []string{"a", "c", "e", "g"}
	b := []string{"b", "c", "d", "g", "h"}

	got, err := intersect(st, a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "g"}, got)

	got, err = union(st, a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "g", "h"}, got)

	got, err = difference(st, a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "e"}, got)

	got, err = union(st, nil, b)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func BenchmarkExecuteAnd(b *testing.B) {
	docs := make(map[string]map[string]string)
	for i := range 5000 {
		docs[fmt.Sprintf("doc-%05d", i)] = map[string]string{
			"body": fmt.Sprintf("search engine topic%d shard%d", i%10, i%7),
		}
	}
	target := buildTarget(b, docs)
	q, err := parser.New(tokenizer.SimpleTokenizer{}).Parse("search AND topic3 NOT shard2")
	if err != nil {
		b.Fatal(err)
	}
	exec := New(ranker.BM25Scorer{})
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		if _, err := exec.Execute(ctx, q, target, 10); err != nil {
			b.Fatal(err)
		}
	}
}
