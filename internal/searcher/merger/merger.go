// Package merger keeps the best k scored documents seen so far.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
)

// TopK is a bounded min-heap: the root is the worst document kept, so a
// new candidate only needs comparing against it.
type TopK struct {
	limit int
	h     scoredDocHeap
}

// NewTopK returns a collector that keeps at most limit documents.
func NewTopK(limit int) *TopK {
	if limit <= 0 {
		limit = 10
	}
	return &TopK{limit: limit, h: make(scoredDocHeap, 0, min(limit, 1024))}
}

// Push offers doc to the collector.
func (t *TopK) Push(doc ranker.ScoredDoc) {
	if t.h.Len() < t.limit {
		heap.Push(&t.h, doc)
		return
	}
	if ranker.Compare(doc, t.h[0]) < 0 {
		t.h[0] = doc
		heap.Fix(&t.h, 0)
	}
}

func (t *TopK) Len() int { return t.h.Len() }

// Results drains the collector in result order.
func (t *TopK) Results() []ranker.ScoredDoc {
	result := make([]ranker.ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap orders worst-first: lower score, then higher ID.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	return ranker.Compare(h[i], h[j]) > 0
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
