// Command loadtest drives the search HTTP API with concurrent boolean
// queries while optionally re-indexing in the background, and reports
// latency, cache hits and the generations that answered.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -seed 5000 -reindex 2s
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var defaultQueries = []string{
	"error",
	"error AND disk",
	"timeout OR refused",
	"level:warn NOT retry",
	`"connection reset"`,
	"(disk OR memory) AND NOT recovered",
	"-debug started",
	"service:api AND (error OR timeout)",
	"NOT info",
}

func main() {
	cfg := Config{Queries: defaultQueries}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent query workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.IntVar(&cfg.Limit, "limit", 10, "result limit sent with each query")
	flag.IntVar(&cfg.SeedDocuments, "seed", 0, "index this many synthetic log lines before starting")
	flag.DurationVar(&cfg.ReindexEvery, "reindex", 0, "re-index the synthetic corpus at this interval (requires -seed)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("=== searchcore load test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	if cfg.SeedDocuments > 0 {
		fmt.Printf("Corpus:      %d synthetic lines\n", cfg.SeedDocuments)
	}
	fmt.Println()

	stats, err := Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	stats.Report(os.Stdout, cfg.Duration)
	if stats.Total() == 0 {
		fmt.Println()
		fmt.Println("WARNING: no requests completed. Is the service running?")
		os.Exit(1)
	}
}
