// Package service hosts the search core: it validates and indexes document
// batches into immutable generations and answers queries against whichever
// generation is active. Queries never wait for indexing; a new generation
// becomes visible in one atomic swap.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/tracing"
)

// StoreFactory opens an empty document store for a generation. The returned
// close function runs when the generation retires.
type StoreFactory func(generation uint64) (store.Store, func() error, error)

// MemoryStores is the default StoreFactory.
func MemoryStores(uint64) (store.Store, func() error, error) {
	return store.NewMemory(), nil, nil
}

// ResultCache memoises results per generation. compute runs on a miss.
type ResultCache interface {
	Fetch(ctx context.Context, generation uint64, query string, limit int,
		compute func(context.Context) (*executor.SearchResult, error)) (*executor.SearchResult, bool, error)
}

// EventSink receives analytics events. Track must not block.
type EventSink interface {
	Track(event any)
}

type Options struct {
	Tokenizer            string
	Scorer               string
	Workers              int
	Stores               StoreFactory
	Cache                ResultCache
	Events               EventSink
	Metrics              *metrics.Metrics
	Tracer               *tracing.Tracer
	SnapshotDir          string
	KeepSnapshots        int
	MaxConcurrentQueries int
	QueryTimeout         time.Duration
}

// Stats are cumulative counters since start-up.
type Stats struct {
	ActiveGeneration   uint64 `json:"active_generation"`
	BuildsSucceeded    int64  `json:"builds_succeeded"`
	BuildsFailed       int64  `json:"builds_failed"`
	GenerationsRetired int64  `json:"generations_retired"`
	QueriesServed      int64  `json:"queries_served"`
	QueriesFailed      int64  `json:"queries_failed"`
	DocumentsIndexed   int64  `json:"documents_indexed"`
}

type Service struct {
	builder  *indexer.Builder
	parser   *parser.Parser
	executor *executor.Executor
	stores   StoreFactory
	cache    ResultCache
	events   EventSink
	metrics  *metrics.Metrics
	tracer   *tracing.Tracer

	snapshotDir   string
	keepSnapshots int
	queryTimeout  time.Duration

	active   atomic.Pointer[Generation]
	nextID   atomic.Uint64
	indexing *semaphore.Weighted
	queries  *semaphore.Weighted

	buildsOK      atomic.Int64
	buildsFailed  atomic.Int64
	retired       atomic.Int64
	queriesServed atomic.Int64
	queriesFailed atomic.Int64
	docsIndexed   atomic.Int64

	logger *slog.Logger
}

// New builds a service with no generation. Searches return empty results
// until the first successful Index or Restore.
func New(opts Options) (*Service, error) {
	tok, err := tokenizer.New(opts.Tokenizer)
	if err != nil {
		return nil, err
	}
	scorer, err := ranker.New(opts.Scorer)
	if err != nil {
		return nil, err
	}
	builder, err := indexer.NewBuilder(tok, opts.Workers)
	if err != nil {
		return nil, err
	}
	if opts.Stores == nil {
		opts.Stores = MemoryStores
	}
	if opts.KeepSnapshots <= 0 {
		opts.KeepSnapshots = 3
	}
	s := &Service{
		builder:       builder,
		parser:        parser.New(tok),
		executor:      executor.New(scorer),
		stores:        opts.Stores,
		cache:         opts.Cache,
		events:        opts.Events,
		metrics:       opts.Metrics,
		tracer:        opts.Tracer,
		snapshotDir:   opts.SnapshotDir,
		keepSnapshots: opts.KeepSnapshots,
		queryTimeout:  opts.QueryTimeout,
		indexing:      semaphore.NewWeighted(1),
		logger:        slog.Default().With("component", "search-service"),
	}
	if opts.MaxConcurrentQueries > 0 {
		s.queries = semaphore.NewWeighted(int64(opts.MaxConcurrentQueries))
	}
	s.logger.Info("search service created",
		"tokenizer", tok.Name(),
		"scorer", scorer.Name(),
	)
	return s, nil
}

// Close releases the tokenisation pool and the active generation.
func (s *Service) Close() {
	if g := s.active.Swap(nil); g != nil {
		g.supersede()
	}
	s.builder.Release()
}

// Tokenizer is the strategy both documents and queries are normalised with.
func (s *Service) Tokenizer() string {
	return s.builder.Tokenizer().Name()
}

// Index validates docs into a fresh store, builds an index over them and
// makes it the active generation. Builds are serialised; a caller waits
// for the one in progress or until ctx ends. Any failure after the wait is
// an *IndexingFailedError and leaves the previous generation serving.
func (s *Service) Index(ctx context.Context, docs []document.Document) (uint64, error) {
	if err := s.indexing.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer s.indexing.Release(1)

	start := time.Now()
	gen := newGeneration(s.nextID.Add(1))
	log := logger.FromContext(ctx).With("component", "search-service", "generation", gen.ID())

	err := s.build(ctx, gen, docs)
	elapsed := time.Since(start)
	if err != nil {
		s.buildsFailed.Add(1)
		if s.metrics != nil {
			s.metrics.IndexBuildsTotal.WithLabelValues("failed").Inc()
		}
		s.track(analytics.IndexEvent{
			Type:       analytics.EventIndexFailed,
			Generation: gen.ID(),
			Documents:  len(docs),
			LatencyMs:  elapsed.Milliseconds(),
			Error:      err.Error(),
			Timestamp:  time.Now().UTC(),
		})
		log.Warn("indexing failed, previous generation kept", "error", err, "documents", len(docs))
		return 0, &apperrors.IndexingFailedError{Cause: err}
	}

	// Read before the swap: once published, gen can be retired at any time.
	built := gen.info()
	gen.onRetire = s.onRetire
	prev := s.active.Swap(gen)
	if prev != nil {
		prev.supersede()
	}

	s.buildsOK.Add(1)
	s.docsIndexed.Add(int64(len(docs)))
	if s.metrics != nil {
		s.metrics.IndexBuildsTotal.WithLabelValues("succeeded").Inc()
		s.metrics.IndexBuildDuration.Observe(elapsed.Seconds())
		s.metrics.DocsIndexedTotal.Add(float64(len(docs)))
		s.metrics.ActiveGeneration.Set(float64(gen.ID()))
	}
	s.track(analytics.IndexEvent{
		Type:       analytics.EventIndexBuilt,
		Generation: gen.ID(),
		Documents:  built.Documents,
		Terms:      built.Terms,
		LatencyMs:  elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	log.Info("generation active",
		"documents", built.Documents,
		"terms", built.Terms,
		"duration", elapsed,
	)
	return gen.ID(), nil
}

func (s *Service) build(ctx context.Context, gen *Generation, docs []document.Document) error {
	docStore, closeStore, err := s.stores(gen.ID())
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	release := func() {
		if closeStore != nil {
			if err := closeStore(); err != nil {
				s.logger.Warn("closing document store", "generation", gen.ID(), "error", err)
			}
		}
	}
	for _, doc := range docs {
		if _, err := docStore.Add(ctx, doc); err != nil {
			release()
			return err
		}
	}
	idx, err := s.builder.Build(ctx, docStore.Iterate(ctx))
	if err != nil {
		release()
		return err
	}
	gen.ready(idx, docStore, closeStore)
	return nil
}

func (s *Service) onRetire(g *Generation, closeErr error) {
	s.retired.Add(1)
	if s.metrics != nil {
		s.metrics.GenerationsRetired.Inc()
	}
	if closeErr != nil {
		s.logger.Warn("closing retired generation store", "generation", g.ID(), "error", closeErr)
	}
	s.logger.Debug("generation retired", "generation", g.ID())
}

// acquire pins the active generation. A generation retired between the
// load and the pin is skipped; the swap that retired it has already
// published a newer one.
func (s *Service) acquire() *Generation {
	for {
		g := s.active.Load()
		if g == nil {
			return nil
		}
		if g.acquire() {
			return g
		}
	}
}

// Search parses raw and evaluates it against the active generation, within
// the configured query timeout. Parse and execution errors are returned
// unchanged. Before the first generation
// exists every query returns an empty result.
func (s *Service) Search(ctx context.Context, raw string, limit int) (*executor.SearchResult, error) {
	start := time.Now()
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}
	ctx, span := s.tracer.Start(ctx, "search", "")
	defer func() {
		span.End()
		span.Log()
	}()
	span.SetAttr("query", raw)

	result, err := s.search(ctx, raw, limit)
	latency := time.Since(start)
	s.observe(ctx, raw, result, err, latency)
	return result, err
}

func (s *Service) search(ctx context.Context, raw string, limit int) (*executor.SearchResult, error) {
	if limit <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidLimit, http.StatusBadRequest, "limit must be positive, got %d", limit)
	}

	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	q, err := s.parser.Parse(raw)
	parseSpan.End()
	if err != nil {
		return nil, err
	}
	parseSpan.SetAttr("canonical", q.String())

	if s.queries != nil {
		if err := s.queries.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.queries.Release(1)
	}

	gen := s.acquire()
	if gen == nil {
		return &executor.SearchResult{Query: raw, Results: []ranker.ScoredDoc{}}, nil
	}
	defer gen.release()
	if s.metrics != nil {
		s.metrics.QueriesInFlight.Inc()
		defer s.metrics.QueriesInFlight.Dec()
	}

	execCtx, execSpan := tracing.StartChildSpan(ctx, "execute")
	defer execSpan.End()
	execSpan.SetAttr("generation", gen.ID())

	compute := func(ctx context.Context) (*executor.SearchResult, error) {
		return s.executor.Execute(ctx, q, gen, limit)
	}
	if s.cache == nil || q.IsEmpty() {
		return compute(execCtx)
	}
	result, cached, err := s.cache.Fetch(execCtx, gen.ID(), q.String(), limit, compute)
	if err != nil {
		return nil, err
	}
	execSpan.SetAttr("cached", cached)
	if cached {
		result.Query = raw
	}
	return result, nil
}

func (s *Service) observe(ctx context.Context, raw string, result *executor.SearchResult, err error, latency time.Duration) {
	outcome := "hit"
	switch {
	case parser.IsMalformed(err):
		outcome = "malformed"
	case err != nil:
		outcome = "error"
	case result.TotalHits == 0 && len(result.Results) == 0:
		outcome = "zero_result"
	}
	if err != nil {
		s.queriesFailed.Add(1)
	} else {
		s.queriesServed.Add(1)
	}

	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
		cacheStatus := "miss"
		if result != nil && result.Cached {
			cacheStatus = "hit"
		}
		s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		if result != nil {
			s.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.FromContext(ctx).Debug("search failed", "query", raw, "error", err)
	}
	if result == nil {
		return
	}
	eventType := analytics.EventSearch
	if outcome == "zero_result" {
		eventType = analytics.EventZeroResult
	}
	requestID, _ := logger.RequestID(ctx)
	s.track(analytics.SearchEvent{
		Type:       eventType,
		Query:      raw,
		Generation: result.Generation,
		TotalHits:  result.TotalHits,
		Returned:   len(result.Results),
		LatencyMs:  latency.Milliseconds(),
		CacheHit:   result.Cached,
		Timestamp:  time.Now().UTC(),
		RequestID:  requestID,
	})
}

func (s *Service) track(event any) {
	if s.events != nil {
		s.events.Track(event)
	}
}

// Generation describes the active generation. ok is false before the first
// generation exists.
func (s *Service) Generation() (info GenerationInfo, ok bool) {
	g := s.active.Load()
	if g == nil {
		return GenerationInfo{}, false
	}
	return g.info(), true
}

// Document returns a document of the active generation.
func (s *Service) Document(ctx context.Context, id string) (document.Document, error) {
	g := s.acquire()
	if g == nil {
		return document.Document{}, fmt.Errorf("document %q: %w", id, apperrors.ErrDocumentNotFound)
	}
	defer g.release()
	docs, err := g.Store()
	if err != nil {
		return document.Document{}, err
	}
	if docs == nil {
		return document.Document{}, fmt.Errorf("generation %d was restored without documents: %w", g.ID(), apperrors.ErrDocumentNotFound)
	}
	return docs.Get(ctx, id)
}

func (s *Service) Stats() Stats {
	st := Stats{
		BuildsSucceeded:    s.buildsOK.Load(),
		BuildsFailed:       s.buildsFailed.Load(),
		GenerationsRetired: s.retired.Load(),
		QueriesServed:      s.queriesServed.Load(),
		QueriesFailed:      s.queriesFailed.Load(),
		DocumentsIndexed:   s.docsIndexed.Load(),
	}
	if g := s.active.Load(); g != nil {
		st.ActiveGeneration = g.ID()
	}
	return st
}

// Snapshot writes the active generation to dir (the configured snapshot
// directory when dir is empty) and prunes older snapshots.
func (s *Service) Snapshot(dir string) (string, error) {
	if dir == "" {
		dir = s.snapshotDir
	}
	if dir == "" {
		return "", errors.New("no snapshot directory configured")
	}
	g := s.acquire()
	if g == nil {
		return "", errors.New("no active generation to snapshot")
	}
	defer g.release()
	idx, err := g.Index()
	if err != nil {
		return "", err
	}
	path, err := segment.NewWriter(dir).Write(g.ID(), idx)
	if err != nil {
		return "", fmt.Errorf("snapshotting generation %d: %w", g.ID(), err)
	}
	if err := segment.Prune(dir, s.keepSnapshots); err != nil {
		s.logger.Warn("pruning snapshots", "dir", dir, "error", err)
	}
	s.logger.Info("generation snapshotted", "generation", g.ID(), "path", path)
	return path, nil
}

// Restore activates the newest snapshot in dir. It returns false when dir
// holds none. Snapshots written with a different tokenizer are rejected,
// since queries would be normalised differently from the indexed terms.
func (s *Service) Restore(ctx context.Context, dir string) (uint64, bool, error) {
	if dir == "" {
		dir = s.snapshotDir
	}
	path, err := segment.Latest(dir)
	if err != nil || path == "" {
		return 0, false, err
	}
	if err := s.indexing.Acquire(ctx, 1); err != nil {
		return 0, false, err
	}
	defer s.indexing.Release(1)

	r, err := segment.OpenReader(path)
	if err != nil {
		return 0, false, err
	}
	defer r.Close()
	if r.Tokenizer() != s.Tokenizer() {
		return 0, false, fmt.Errorf("snapshot %s uses tokenizer %q, service uses %q",
			filepath.Base(path), r.Tokenizer(), s.Tokenizer())
	}
	idx, err := r.Load()
	if err != nil {
		return 0, false, err
	}

	for {
		cur := s.nextID.Load()
		if cur >= r.Generation() || s.nextID.CompareAndSwap(cur, r.Generation()) {
			break
		}
	}
	gen := newGeneration(s.nextID.Add(1))
	gen.ready(idx, nil, nil)
	gen.onRetire = s.onRetire
	if prev := s.active.Swap(gen); prev != nil {
		prev.supersede()
	}
	if s.metrics != nil {
		s.metrics.ActiveGeneration.Set(float64(gen.ID()))
	}
	s.logger.Info("generation restored",
		"generation", gen.ID(),
		"snapshot", path,
		"documents", idx.DocumentCount(),
	)
	return gen.ID(), true, nil
}
