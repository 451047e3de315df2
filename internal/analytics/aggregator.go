package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
)

// maxLatencySamples bounds the latency window percentiles are computed over.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	IndexBuilds       int64        `json:"index_builds"`
	IndexFailures     int64        `json:"index_failures"`
	LastGeneration    uint64       `json:"last_generation"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running statistics. It can be fed directly
// (it satisfies the service's event sink) or from the analytics topic via
// HandleEvent.
type Aggregator struct {
	mu                sync.Mutex
	stats             AggregatedStats
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records one event. Unknown event types are ignored.
func (a *Aggregator) Track(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case IndexEvent:
		a.recordIndex(e)
	}
}

// HandleEvent decodes analytics topic messages into the aggregator.
// Undecodable messages are dropped.
func (a *Aggregator) HandleEvent() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := Decode(value)
		if err != nil {
			a.logger.Warn("skipping analytics message", "key", string(key), "error", err)
			return nil
		}
		a.Track(event)
		return nil
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalSearches++
	if e.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[e.Query]++
	if e.TotalHits == 0 {
		a.stats.ZeroResultCount++
		a.zeroResultQueries[e.Query]++
	}
}

func (a *Aggregator) recordIndex(e IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e.Type == EventIndexFailed {
		a.stats.IndexFailures++
		return
	}
	a.stats.IndexBuilds++
	a.stats.LastGeneration = max(a.stats.LastGeneration, e.Generation)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.stats
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(x, y QueryCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Query, y.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
