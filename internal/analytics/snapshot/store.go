// Package snapshot persists aggregated analytics stats to the SQL database
// the search process loads documents from, so statistics survive restarts.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/analytics"
)

// Store reads and writes the analytics_snapshots table. The schema is kept
// portable between Postgres and SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-snapshots"),
	}
}

// EnsureSchema creates the snapshot table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS analytics_snapshots (
		data        TEXT NOT NULL,
		captured_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating analytics_snapshots: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
		string(data), time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved", "total_searches", stats.TotalSearches)
	return nil
}

// Latest returns the newest snapshot, or nil when none exists.
func (s *Store) Latest(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// Run saves the aggregator's stats every interval and once more when ctx
// ends.
func (s *Store) Run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Save(ctx, agg.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Save(saveCtx, agg.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			cancel()
			return
		}
	}
}
