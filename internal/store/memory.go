package store

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

var _ Store = (*Memory)(nil)

// Memory is a map-backed Store. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]document.Document
	ids  []string
	// sorted reports whether ids is currently in ascending order.
	sorted bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]document.Document),
		sorted: true,
	}
}

// Add validates doc and stores a private copy of it.
func (m *Memory) Add(ctx context.Context, doc document.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := document.Validate(doc); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; exists {
		return "", duplicateID(doc.ID)
	}
	m.docs[doc.ID] = doc.Clone()
	if n := len(m.ids); n > 0 && m.ids[n-1] > doc.ID {
		m.sorted = false
	}
	m.ids = append(m.ids, doc.ID)
	return doc.ID, nil
}

// Get returns a copy of the document with the given ID.
func (m *Memory) Get(ctx context.Context, id string) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return document.Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return document.Document{}, fmt.Errorf("get %q: %w", id, apperrors.ErrDocumentNotFound)
	}
	return doc.Clone(), nil
}

// Iterate yields a snapshot of the store taken when iteration begins.
func (m *Memory) Iterate(ctx context.Context) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		ids := m.snapshotIDs()
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(document.Document{}, err)
				return
			}
			m.mu.RLock()
			doc := m.docs[id]
			m.mu.RUnlock()
			if !yield(doc.Clone(), nil) {
				return
			}
		}
	}
}

func (m *Memory) snapshotIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sorted {
		slices.Sort(m.ids)
		m.sorted = true
	}
	return slices.Clone(m.ids)
}

// Len reports the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
