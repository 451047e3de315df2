// Package index holds the inverted index a generation serves queries from.
// An Index is built once, either by freezing a MemoryIndex or by loading a
// segment, and is read-only afterwards, so any number of queries may share
// it without locking.
package index

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
)

type termInfo struct {
	postings PostingList
	docIDs   []string
}

// Index is an immutable inverted index.
type Index struct {
	terms       map[string]termInfo
	sorted      []string
	docIDs      []string
	docLens     map[string]int
	totalLen    int
	tokenizer   string
	fingerprint string
}

// New validates entries and returns an Index over them. Every document that
// appears in a posting must have an entry in docLens; documents with no
// terms may appear in docLens alone.
func New(entries []TermEntry, docLens map[string]int, tokenizerName string) (*Index, error) {
	idx := &Index{
		terms:     make(map[string]termInfo, len(entries)),
		sorted:    make([]string, 0, len(entries)),
		docLens:   maps.Clone(docLens),
		tokenizer: tokenizerName,
	}
	if idx.docLens == nil {
		idx.docLens = map[string]int{}
	}
	for _, e := range entries {
		if e.Term == "" {
			return nil, fmt.Errorf("empty term")
		}
		if _, dup := idx.terms[e.Term]; dup {
			return nil, fmt.Errorf("term %q listed twice", e.Term)
		}
		if err := e.Postings.Check(); err != nil {
			return nil, fmt.Errorf("term %q: %w", e.Term, err)
		}
		for _, p := range e.Postings {
			if _, ok := idx.docLens[p.DocID]; !ok {
				return nil, fmt.Errorf("term %q: document %q has no length", e.Term, p.DocID)
			}
		}
		idx.terms[e.Term] = termInfo{postings: e.Postings, docIDs: e.Postings.DocIDs()}
		idx.sorted = append(idx.sorted, e.Term)
	}
	slices.Sort(idx.sorted)
	idx.docIDs = slices.Sorted(maps.Keys(idx.docLens))
	for _, n := range idx.docLens {
		idx.totalLen += n
	}
	idx.fingerprint = idx.computeFingerprint()
	return idx, nil
}

// Postings returns the postings for term in (DocID, Field) order. The
// returned slice must not be modified.
func (idx *Index) Postings(term string) PostingList {
	return idx.terms[term].postings
}

// DocIDs returns the ascending distinct documents containing term.
func (idx *Index) DocIDs(term string) []string {
	return idx.terms[term].docIDs
}

// DocFreq is the number of documents containing term.
func (idx *Index) DocFreq(term string) int {
	return len(idx.terms[term].docIDs)
}

// Terms returns all terms in ascending order.
func (idx *Index) Terms() []string {
	return idx.sorted
}

// Entries returns the index as term entries, terms ascending.
func (idx *Index) Entries() []TermEntry {
	entries := make([]TermEntry, len(idx.sorted))
	for i, term := range idx.sorted {
		entries[i] = TermEntry{Term: term, Postings: idx.terms[term].postings}
	}
	return entries
}

// AllDocIDs returns every indexed document in ascending order.
func (idx *Index) AllDocIDs() []string {
	return idx.docIDs
}

func (idx *Index) HasDocument(id string) bool {
	_, ok := idx.docLens[id]
	return ok
}

// DocLength is the token count of a document over all its fields.
func (idx *Index) DocLength(id string) int {
	return idx.docLens[id]
}

// DocLengths returns a copy of the per-document lengths.
func (idx *Index) DocLengths() map[string]int {
	return maps.Clone(idx.docLens)
}

func (idx *Index) DocumentCount() int {
	return len(idx.docIDs)
}

func (idx *Index) TermCount() int {
	return len(idx.sorted)
}

func (idx *Index) AverageDocumentLength() float64 {
	if len(idx.docIDs) == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(len(idx.docIDs))
}

// Tokenizer names the strategy the index was built with.
func (idx *Index) Tokenizer() string {
	return idx.tokenizer
}

// Fingerprint is a content hash over terms, postings and document lengths.
// Two indexes built from the same documents with the same tokenizer have
// equal fingerprints regardless of input order.
func (idx *Index) Fingerprint() string {
	return idx.fingerprint
}

func (idx *Index) computeFingerprint() string {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(n int) {
		binary.BigEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}
	writeString := func(s string) {
		writeInt(len(s))
		h.Write([]byte(s))
	}

	writeString(idx.tokenizer)
	writeInt(len(idx.docIDs))
	for _, id := range idx.docIDs {
		writeString(id)
		writeInt(idx.docLens[id])
	}
	writeInt(len(idx.sorted))
	for _, term := range idx.sorted {
		writeString(term)
		postings := idx.terms[term].postings
		writeInt(len(postings))
		for _, p := range postings {
			writeString(p.DocID)
			writeString(p.Field)
			writeInt(p.Frequency)
			writeInt(len(p.Positions))
			for _, pos := range p.Positions {
				writeInt(pos)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
