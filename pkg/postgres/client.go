// Package postgres opens pooled lib/pq connections and runs transactions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

type Client struct {
	DB *sql.DB
}

// New connects using cfg. A non-empty dsn overrides the DSN built from
// cfg's host fields.
func New(ctx context.Context, cfg config.PostgresConfig, dsn string) (*Client, error) {
	if dsn == "" {
		dsn = cfg.DSN()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn in a transaction on db, committing on success and rolling
// back on error.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return InTx(ctx, c.DB, fn)
}
