package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
)

// Config controls one load test run.
type Config struct {
	BaseURL       string
	Concurrency   int
	Duration      time.Duration
	Limit         int
	Queries       []string
	SeedDocuments int
	ReindexEvery  time.Duration
}

// Stats accumulates per-request outcomes. It is safe for concurrent use.
type Stats struct {
	total     atomic.Int64
	success   atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64
	reindexes atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
	generations map[uint64]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
		generations: make(map[uint64]int64),
	}
}

// Record adds one query outcome. resp is nil unless the request succeeded.
func (s *Stats) Record(d time.Duration, status int, resp *proto.SearchResponse, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.failed.Add(1)
	}
	if resp != nil && resp.Cached {
		s.cacheHits.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	if resp != nil {
		s.generations[resp.Generation]++
	}
}

func (s *Stats) Total() int64 {
	return s.total.Load()
}

// Generations returns how many answers each generation served.
func (s *Stats) Generations() map[uint64]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint64]int64, len(s.generations))
	for g, n := range s.generations {
		out[g] = n
	}
	return out
}

// Run seeds the corpus if asked, then queries until cfg.Duration elapses or
// ctx is cancelled. A failed seed aborts the run; failed background
// re-indexes do not.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	if len(cfg.Queries) == 0 {
		return nil, errors.New("no queries configured")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Limit < 1 {
		cfg.Limit = 10
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	stats := NewStats()

	if cfg.SeedDocuments > 0 {
		if err := indexCorpus(ctx, client, cfg.BaseURL, SyntheticCorpus(cfg.SeedDocuments, 0)); err != nil {
			return nil, fmt.Errorf("seeding corpus: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				start := time.Now()
				status, resp, err := search(ctx, client, cfg.BaseURL, query, cfg.Limit)
				if ctx.Err() != nil {
					return nil
				}
				stats.Record(time.Since(start), status, resp, err)
			}
			return nil
		})
	}

	if cfg.ReindexEvery > 0 && cfg.SeedDocuments > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.ReindexEvery)
			defer ticker.Stop()
			for round := 1; ; round++ {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
				if err := indexCorpus(ctx, client, cfg.BaseURL, SyntheticCorpus(cfg.SeedDocuments, round)); err == nil {
					stats.reindexes.Add(1)
				}
			}
		})
	}

	return stats, g.Wait()
}

func search(ctx context.Context, client *http.Client, baseURL, query string, limit int) (int, *proto.SearchResponse, error) {
	u := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}
	var out proto.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, &out, nil
}

func indexCorpus(ctx context.Context, client *http.Client, baseURL string, docs []proto.Document) error {
	body, err := json.Marshal(proto.IndexRequest{Documents: docs})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/index", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("index returned %s", resp.Status)
	}
	return nil
}

var (
	levels   = []string{"info", "warn", "error", "debug"}
	services = []string{"api", "worker", "scheduler"}
	messages = []string{
		"request started",
		"disk usage above threshold",
		"connection reset by peer",
		"upstream timeout, will retry",
		"connection refused",
		"memory pressure recovered",
		"shard rebalanced",
	}
)

// SyntheticCorpus returns n deterministic log lines. round shifts which
// message each line carries so successive corpora differ.
func SyntheticCorpus(n, round int) []proto.Document {
	docs := make([]proto.Document, n)
	for i := range docs {
		docs[i] = proto.Document{
			ID: fmt.Sprintf("synthetic.log:%d", i),
			Fields: map[string]string{
				"level":   levels[i%len(levels)],
				"service": services[i%len(services)],
				"msg":     messages[(i+round)%len(messages)],
			},
		}
	}
	return docs
}

// Report writes a human-readable summary.
func (s *Stats) Report(w io.Writer, elapsed time.Duration) {
	total := s.total.Load()
	failed := s.failed.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success.Load())
	fmt.Fprintf(w, "Errors:          %d\n", failed)
	fmt.Fprintf(w, "Cache Hits:      %d\n", s.cacheHits.Load())
	fmt.Fprintf(w, "Re-indexes:      %d\n", s.reindexes.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/elapsed.Seconds())
	}

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make(map[int]int64, len(s.statusCodes))
	for c, n := range s.statusCodes {
		codes[c] = n
	}
	s.mu.Unlock()
	gens := s.Generations()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sq float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sq += diff * diff
		}

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(len(latencies)))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range slices.Sorted(maps.Keys(codes)) {
		fmt.Fprintf(w, "  %d: %d\n", code, codes[code])
	}
	if len(gens) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Generations ===")
		for _, g := range slices.Sorted(maps.Keys(gens)) {
			fmt.Fprintf(w, "  %d: %d\n", g, gens[g])
		}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
