package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource loads documents from a table with id, title and body columns.
// Rows carry the generation that last indexed them.
type SQLSource struct {
	db     *sql.DB
	driver string
	table  string
	logger *slog.Logger
}

// NewSQLSource wraps an open database. driver selects the placeholder
// syntax and must be DriverPostgres or DriverSQLite.
func NewSQLSource(db *sql.DB, driver, table string) (*SQLSource, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported source driver %q", driver)
	}
	if table == "" {
		table = "documents"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLSource{
		db:     db,
		driver: driver,
		table:  table,
		logger: slog.Default().With("component", "sql-source", "table", table),
	}, nil
}

// OpenSQL opens dsn with driver and verifies the connection.
func OpenSQL(ctx context.Context, driver, dsn, table string) (*SQLSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s source: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s source: %w", driver, err)
	}
	return NewSQLSource(db, driver, table)
}

func (s *SQLSource) DB() *sql.DB {
	return s.db
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}

func (s *SQLSource) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// EnsureSchema creates the table if it is missing.
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id                 TEXT PRIMARY KEY,
		title              TEXT NOT NULL DEFAULT '',
		body               TEXT NOT NULL DEFAULT '',
		indexed_generation BIGINT
	)`, s.table))
	if err != nil {
		return fmt.Errorf("creating %s: %w", s.table, err)
	}
	return nil
}

// Insert adds or replaces a row. Fields other than title and body are
// ignored.
func (s *SQLSource) Insert(ctx context.Context, doc document.Document) error {
	var query string
	if s.driver == DriverPostgres {
		query = fmt.Sprintf(`INSERT INTO %s (id, title, body) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, body = EXCLUDED.body, indexed_generation = NULL`, s.table)
	} else {
		query = fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, title, body) VALUES (?, ?, ?)`, s.table)
	}
	if _, err := s.db.ExecContext(ctx, query, doc.ID, doc.Fields["title"], doc.Fields["body"]); err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

// Load reads every row as a document with title and body fields. Empty
// columns are omitted.
func (s *SQLSource) Load(ctx context.Context) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, title, body FROM %s ORDER BY id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var id, title, body string
		if err := rows.Scan(&id, &title, &body); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.table, err)
		}
		fields := make(map[string]string, 2)
		if strings.TrimSpace(title) != "" {
			fields["title"] = title
		}
		if strings.TrimSpace(body) != "" {
			fields["body"] = body
		}
		docs = append(docs, document.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", s.table, err)
	}
	s.logger.Info("documents loaded", "count", len(docs))
	return docs, nil
}

// MarkIndexed records generation against every loaded row in one
// transaction.
func (s *SQLSource) MarkIndexed(ctx context.Context, generation uint64, ids []string) error {
	query := fmt.Sprintf(`UPDATE %s SET indexed_generation = %s WHERE id = %s`,
		s.table, s.placeholder(1), s.placeholder(2))
	err := postgres.InTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing update: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, int64(generation), id); err != nil {
				return fmt.Errorf("marking %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("rows marked indexed", "generation", generation, "count", len(ids))
	return nil
}

// Pending counts rows not yet indexed by generation.
func (s *SQLSource) Pending(ctx context.Context, generation uint64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE indexed_generation IS NULL OR indexed_generation <> %s`,
			s.table, s.placeholder(1)),
		int64(generation),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending rows: %w", err)
	}
	return n, nil
}
