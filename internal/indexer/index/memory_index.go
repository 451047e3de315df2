package index

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
)

type postingKey struct {
	docID string
	field string
}

// MemoryIndex accumulates postings while a generation is being built. It is
// safe for concurrent AddField calls; Freeze turns it into an immutable
// Index.
type MemoryIndex struct {
	mu       sync.Mutex
	index    map[string]map[postingKey]*Posting
	docLens  map[string]int
	size     int64
	tokenize string
}

// NewMemoryIndex returns an empty accumulator. tokenizerName is recorded on
// the frozen Index so queries can be normalised the same way.
func NewMemoryIndex(tokenizerName string) *MemoryIndex {
	return &MemoryIndex{
		index:    make(map[string]map[postingKey]*Posting),
		docLens:  make(map[string]int),
		tokenize: tokenizerName,
	}
}

// AddField records the tokens of one field of one document. A document with
// no tokens at all is still counted with length zero.
func (m *MemoryIndex) AddField(docID, field string, tokens []tokenizer.Token) {
	termData := make(map[string]*Posting)
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Field:     field,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}

	key := postingKey{docID: docID, field: field}

	m.mu.Lock()
	defer m.mu.Unlock()

	for term, posting := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[postingKey]*Posting)
		}
		m.index[term][key] = posting
		m.size += int64(len(term) + len(docID) + len(field) + len(posting.Positions)*8 + 64)
	}
	m.docLens[docID] += len(tokens)
}

// Snapshot returns every term with its postings, terms ascending and
// postings in (DocID, Field) order.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		slices.SortFunc(postings, comparePostings)
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	slices.SortFunc(entries, func(a, b TermEntry) int {
		return cmp.Compare(a.Term, b.Term)
	})
	return entries
}

// Freeze builds the immutable Index from the accumulated postings.
func (m *MemoryIndex) Freeze() (*Index, error) {
	entries := m.Snapshot()
	m.mu.Lock()
	lens := make(map[string]int, len(m.docLens))
	for id, n := range m.docLens {
		lens[id] = n
	}
	m.mu.Unlock()
	return New(entries, lens, m.tokenize)
}

func (m *MemoryIndex) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docLens)
}
