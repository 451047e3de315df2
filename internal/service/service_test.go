package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
)

func newService(t *testing.T, mutate ...func(*Options)) *Service {
	t.Helper()
	opts := Options{Tokenizer: "simple", Scorer: "bm25", Workers: 2}
	for _, m := range mutate {
		m(&opts)
	}
	svc, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func catDog() []document.Document {
	return []document.Document{
		document.New("1", map[string]string{"body": "the cat sat"}),
		document.New("2", map[string]string{"body": "the dog sat"}),
	}
}

func ids(res *executor.SearchResult) []string {
	out := make([]string, len(res.Results))
	for i, r := range res.Results {
		out[i] = r.DocID
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingSink) Track(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*executor.SearchResult
}

func (c *mapCache) Fetch(ctx context.Context, generation uint64, query string, limit int,
	compute func(context.Context) (*executor.SearchResult, error)) (*executor.SearchResult, bool, error) {
	key := fmt.Sprintf("%d|%s|%d", generation, query, limit)
	c.mu.Lock()
	if r, ok := c.entries[key]; ok {
		c.mu.Unlock()
		cp := *r
		cp.Cached = true
		return &cp, true, nil
	}
	c.mu.Unlock()
	r, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	c.entries[key] = r
	c.mu.Unlock()
	return r, false, nil
}

func TestIndexAndSearch(t *testing.T) {
	svc := newService(t)
	gen, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	res, err := svc.Search(context.Background(), "sat", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(res))
	assert.Equal(t, uint64(1), res.Generation)

	res, err = svc.Search(context.Background(), "cat AND dog", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Results)

	res, err = svc.Search(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestSearchBeforeFirstGeneration(t *testing.T) {
	svc := newService(t)
	res, err := svc.Search(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Zero(t, res.Generation)

	_, ok := svc.Generation()
	assert.False(t, ok)
}

func TestSearchErrors(t *testing.T) {
	svc := newService(t)
	_, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "cat", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidLimit)

	_, err = svc.Search(context.Background(), "(cat", 10)
	var mq *parser.MalformedQueryError
	require.ErrorAs(t, err, &mq)
	assert.ErrorIs(t, err, apperrors.ErrMalformedQuery)

	assert.Equal(t, int64(2), svc.Stats().QueriesFailed)
}

func TestFailedIndexKeepsPreviousGeneration(t *testing.T) {
	sink := &recordingSink{}
	svc := newService(t, func(o *Options) { o.Events = sink })
	first, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)

	tests := []struct {
		name  string
		docs  []document.Document
		cause error
	}{
		{"empty corpus", nil, apperrors.ErrEmptyCorpus},
		{"missing id", []document.Document{document.New("", map[string]string{"body": "x"})}, apperrors.ErrInvalidDocument},
		{"duplicate id", []document.Document{
			document.New("a", map[string]string{"body": "x"}),
			document.New("a", map[string]string{"body": "y"}),
		}, apperrors.ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Index(context.Background(), tt.docs)
			var failed *apperrors.IndexingFailedError
			require.ErrorAs(t, err, &failed)
			assert.ErrorIs(t, err, tt.cause)
			assert.ErrorIs(t, err, apperrors.ErrIndexingFailed)

			info, ok := svc.Generation()
			require.True(t, ok)
			assert.Equal(t, first, info.ID)
			res, err := svc.Search(context.Background(), "cat", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"1"}, ids(res))
		})
	}

	st := svc.Stats()
	assert.Equal(t, int64(1), st.BuildsSucceeded)
	assert.Equal(t, int64(3), st.BuildsFailed)

	var failures int
	for _, e := range sink.snapshot() {
		if ev, ok := e.(analytics.IndexEvent); ok && ev.Type == analytics.EventIndexFailed {
			failures++
			assert.NotEmpty(t, ev.Error)
		}
	}
	assert.Equal(t, 3, failures)
}

func TestIndexReplacesCorpus(t *testing.T) {
	svc := newService(t)
	_, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)
	gen, err := svc.Index(context.Background(), []document.Document{
		document.New("3", map[string]string{"body": "a bird sang"}),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	res, err := svc.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	res, err = svc.Search(context.Background(), "bird", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids(res))
	assert.Equal(t, int64(1), svc.Stats().GenerationsRetired)
}

func TestSupersededGenerationRetiresOnLastRelease(t *testing.T) {
	closed := make(chan uint64, 4)
	svc := newService(t, func(o *Options) {
		o.Stores = func(gen uint64) (store.Store, func() error, error) {
			return store.NewMemory(), func() error { closed <- gen; return nil }, nil
		}
	})
	_, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)

	held := svc.acquire()
	require.NotNil(t, held)

	_, err = svc.Index(context.Background(), []document.Document{
		document.New("3", map[string]string{"body": "bird"}),
	})
	require.NoError(t, err)

	assert.Equal(t, StateSuperseded, held.State())
	idx, err := held.Index()
	require.NoError(t, err)
	assert.Equal(t, 2, idx.DocumentCount())
	assert.Empty(t, closed)

	held.release()
	assert.Equal(t, StateRetired, held.State())
	_, err = held.Index()
	assert.ErrorIs(t, err, apperrors.ErrIndexGenerationMismatch)
	assert.Equal(t, uint64(1), <-closed)
	assert.Panics(t, held.release)
}

func TestIndexSurvivesCloseRightAfterSwap(t *testing.T) {
	sink := &recordingSink{}
	var svc *Service
	svc = newService(t, func(o *Options) {
		o.Events = sink
		o.Stores = func(gen uint64) (store.Store, func() error, error) {
			if gen != 1 {
				return store.NewMemory(), nil, nil
			}
			// retiring generation 1 happens right after generation 2 is
			// published; closing here retires generation 2 as well
			return store.NewMemory(), func() error { svc.Close(); return nil }, nil
		}
	})
	_, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)

	var gen uint64
	require.NotPanics(t, func() {
		gen, err = svc.Index(context.Background(), []document.Document{
			document.New("3", map[string]string{"body": "a bird sang"}),
		})
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
	_, ok := svc.Generation()
	assert.False(t, ok)

	var built []analytics.IndexEvent
	for _, e := range sink.snapshot() {
		if ev, ok := e.(analytics.IndexEvent); ok && ev.Type == analytics.EventIndexBuilt {
			built = append(built, ev)
		}
	}
	require.Len(t, built, 2)
	assert.Equal(t, 1, built[1].Documents)
	assert.Equal(t, 3, built[1].Terms)
}

func TestConcurrentSearchDuringIndexing(t *testing.T) {
	svc := newService(t)
	_, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for ctx.Err() == nil {
				res, err := svc.Search(context.Background(), "sat OR bird", 10)
				if !assert.NoError(t, err) {
					return
				}
				// every generation in this test holds exactly two documents
				assert.Len(t, res.Results, 2)
			}
		})
	}
	for i := range 20 {
		_, err := svc.Index(context.Background(), []document.Document{
			document.New(fmt.Sprintf("a%d", i), map[string]string{"body": "bird sat"}),
			document.New(fmt.Sprintf("b%d", i), map[string]string{"body": "bird flew"}),
		})
		require.NoError(t, err)
	}
	cancel()
	wg.Wait()

	info, ok := svc.Generation()
	require.True(t, ok)
	assert.Equal(t, uint64(21), info.ID)
	assert.Equal(t, StateReady.String(), info.State)
}

func TestIndexWaitsRespectsContext(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.indexing.Acquire(context.Background(), 1))
	defer svc.indexing.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Index(ctx, catDog())
	assert.ErrorIs(t, err, context.Canceled)
	var failed *apperrors.IndexingFailedError
	assert.False(t, errors.As(err, &failed))
}

func TestSearchUsesCache(t *testing.T) {
	c := &mapCache{entries: make(map[string]*executor.SearchResult)}
	svc := newService(t, func(o *Options) { o.Cache = c })
	_, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)

	res, err := svc.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	assert.False(t, res.Cached)

	res, err = svc.Search(context.Background(), "  cat ", 10)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, "  cat ", res.Query)
	assert.Equal(t, []string{"1"}, ids(res))
}

func TestSearchEventsAndMetrics(t *testing.T) {
	sink := &recordingSink{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := newService(t, func(o *Options) {
		o.Events = sink
		o.Metrics = m
	})
	_, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "zebra", 10)
	require.NoError(t, err)

	var types []analytics.EventType
	for _, e := range sink.snapshot() {
		if ev, ok := e.(analytics.SearchEvent); ok {
			types = append(types, ev.Type)
		}
	}
	assert.Equal(t, []analytics.EventType{analytics.EventSearch, analytics.EventZeroResult}, types)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveGeneration))
}

func TestDocument(t *testing.T) {
	svc := newService(t)
	_, err := svc.Document(context.Background(), "1")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	_, err = svc.Index(context.Background(), catDog())
	require.NoError(t, err)
	doc, err := svc.Document(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "the dog sat", doc.Fields["body"])

	_, err = svc.Document(context.Background(), "9")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestSnapshotRestore(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, func(o *Options) { o.SnapshotDir = dir })
	_, err := svc.Snapshot("")
	assert.Error(t, err)

	_, err = svc.Index(context.Background(), catDog())
	require.NoError(t, err)
	_, err = svc.Index(context.Background(), catDog())
	require.NoError(t, err)
	path, err := svc.Snapshot("")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, dir, filepath.Dir(path))

	restored := newService(t, func(o *Options) { o.SnapshotDir = dir })
	gen, ok, err := restored.Restore(context.Background(), "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), gen)

	res, err := restored.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(res))

	_, err = restored.Document(context.Background(), "1")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	next, err := restored.Index(context.Background(), catDog())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), next)
}

func TestRestoreRejectsTokenizerMismatch(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, func(o *Options) { o.SnapshotDir = dir })
	_, err := svc.Index(context.Background(), catDog())
	require.NoError(t, err)
	_, err = svc.Snapshot("")
	require.NoError(t, err)

	other := newService(t, func(o *Options) { o.Tokenizer = "stemming" })
	_, _, err = other.Restore(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokenizer")
}

func TestRestoreEmptyDir(t *testing.T) {
	svc := newService(t)
	_, ok, err := svc.Restore(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRejectsUnknownStrategies(t *testing.T) {
	_, err := New(Options{Tokenizer: "snowball"})
	assert.Error(t, err)
	_, err = New(Options{Scorer: "pagerank"})
	assert.Error(t, err)
}
