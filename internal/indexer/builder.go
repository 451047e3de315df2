// Package indexer builds immutable inverted indexes from a document
// sequence. Field tokenisation fans out over a worker pool; the resulting
// postings are sorted when the index is frozen, so the output never
// depends on the order documents arrive in or on worker scheduling.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Builder turns documents into an Index.
type Builder struct {
	tokenizer tokenizer.Tokenizer
	pool      *ants.Pool
	logger    *slog.Logger
}

// NewBuilder creates a Builder with a tokenisation pool of the given size.
// A non-positive size uses half the CPUs.
func NewBuilder(tok tokenizer.Tokenizer, workers int) (*Builder, error) {
	if tok == nil {
		return nil, errors.New("tokenizer is required")
	}
	if workers <= 0 {
		workers = max(runtime.NumCPU()/2, 1)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating tokenizer pool: %w", err)
	}
	return &Builder{
		tokenizer: tok,
		pool:      pool,
		logger:    slog.Default().With("component", "index-builder"),
	}, nil
}

// Tokenizer returns the strategy documents are tokenised with.
func (b *Builder) Tokenizer() tokenizer.Tokenizer {
	return b.tokenizer
}

// Release stops the worker pool.
func (b *Builder) Release() {
	b.pool.Release()
}

// Build reads every document from docs and returns the index over them.
// It fails with ErrEmptyCorpus when docs yields nothing and with
// ErrInvalidDocument when a document is invalid or its ID repeats.
func (b *Builder) Build(ctx context.Context, docs iter.Seq2[document.Document, error]) (*index.Index, error) {
	start := time.Now()
	mem := index.NewMemoryIndex(b.tokenizer.Name())
	seen := make(map[string]struct{})

	var wg sync.WaitGroup
	var buildErr error

	for doc, err := range docs {
		if err != nil {
			buildErr = fmt.Errorf("reading documents: %w", err)
			break
		}
		if err := ctx.Err(); err != nil {
			buildErr = err
			break
		}
		if err := document.Validate(doc); err != nil {
			buildErr = err
			break
		}
		if _, dup := seen[doc.ID]; dup {
			buildErr = &document.ValidationError{
				ID:     doc.ID,
				Fields: map[string]string{"id": "id appears more than once"},
			}
			break
		}
		seen[doc.ID] = struct{}{}

		for _, field := range doc.FieldNames() {
			id, name, text := doc.ID, field, doc.Fields[field]
			wg.Add(1)
			if err := b.pool.Submit(func() {
				defer wg.Done()
				mem.AddField(id, name, b.tokenizer.Tokenize(text))
			}); err != nil {
				wg.Done()
				buildErr = fmt.Errorf("submitting tokenisation: %w", err)
				break
			}
		}
		if buildErr != nil {
			break
		}
	}
	wg.Wait()

	if buildErr != nil {
		return nil, buildErr
	}
	if len(seen) == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}

	idx, err := mem.Freeze()
	if err != nil {
		return nil, fmt.Errorf("freezing index: %w", err)
	}
	b.logger.Info("index built",
		"documents", idx.DocumentCount(),
		"terms", idx.TermCount(),
		"tokenizer", b.tokenizer.Name(),
		"approx_bytes", mem.Size(),
		"duration", time.Since(start),
	)
	return idx, nil
}

// Slice adapts a document slice to the sequence Build consumes.
func Slice(docs []document.Document) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}
