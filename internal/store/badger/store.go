// Package badger is a persistent document store on BadgerDB. Keys are
// "doc:<id>" so badger's key order is the store's ID order.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

const docPrefix = "doc:"

var _ store.Store = (*Store)(nil)

var errStop = errors.New("iteration stopped")

// Store persists documents in BadgerDB.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

type loggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens (creating if needed) a store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir %s: %w", dir, err)
	}
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory opens a store that lives only for the life of the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	logger := slog.Default().With("component", "badger-store")
	opts.Logger = &loggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func docKey(id string) []byte {
	return []byte(docPrefix + id)
}

// Add validates doc and writes it unless the ID is already present.
func (s *Store) Add(ctx context.Context, doc document.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := document.Validate(doc); err != nil {
		return "", err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding document %q: %w", doc.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(docKey(doc.ID))
		switch {
		case err == nil:
			return &document.ValidationError{
				ID:     doc.ID,
				Fields: map[string]string{"id": "id already exists"},
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(docKey(doc.ID), data)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidDocument) {
			return "", err
		}
		return "", fmt.Errorf("storing document %q: %w", doc.ID, err)
	}
	return doc.ID, nil
}

// Get reads one document.
func (s *Store) Get(ctx context.Context, id string) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return document.Document{}, err
	}
	var doc document.Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return document.Document{}, fmt.Errorf("get %q: %w", id, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("reading document %q: %w", id, err)
	}
	return doc, nil
}

// Iterate walks the documents in key order inside a single read
// transaction, so one pass sees a consistent snapshot.
func (s *Store) Iterate(ctx context.Context) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(docPrefix)
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var doc document.Document
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &doc)
				}); err != nil {
					return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
				}
				if !yield(doc, nil) {
					return errStop
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(document.Document{}, err)
		}
	}
}

// Len counts stored documents with a key-only scan.
func (s *Store) Len() int {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("counting documents", "error", err)
	}
	return n
}

// PerGeneration opens a fresh store under root for each generation. The
// returned close function closes the store and deletes its directory, so
// only live generations occupy disk.
func PerGeneration(root string) func(generation uint64) (store.Store, func() error, error) {
	return func(generation uint64) (store.Store, func() error, error) {
		dir := filepath.Join(root, fmt.Sprintf("gen_%020d", generation))
		if err := os.RemoveAll(dir); err != nil {
			return nil, nil, fmt.Errorf("clearing %s: %w", dir, err)
		}
		s, err := Open(dir)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error {
			return errors.Join(s.Close(), os.RemoveAll(dir))
		}
		return s, closeFn, nil
	}
}
