package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// State is a generation's position in its lifecycle. It only moves forward.
type State int32

const (
	StateBuilding State = iota
	StateReady
	StateSuperseded
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateSuperseded:
		return "superseded"
	case StateRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// Generation is one immutable index plus the documents it was built from.
// Queries hold a reference while they run; a superseded generation is
// retired, and its index and store released, when the last one finishes.
type Generation struct {
	id      uint64
	builtAt time.Time

	mu         sync.Mutex
	state      State
	refs       int64
	idx        *index.Index
	docs       store.Store
	closeStore func() error
	onRetire   func(g *Generation, closeErr error)
}

func newGeneration(id uint64) *Generation {
	return &Generation{id: id, state: StateBuilding}
}

func (g *Generation) ID() uint64 {
	return g.id
}

func (g *Generation) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Index returns the generation's index. It fails with
// ErrIndexGenerationMismatch once the generation is retired.
func (g *Generation) Index() (*index.Index, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateRetired || g.idx == nil {
		return nil, fmt.Errorf("generation %d is %s: %w", g.id, g.state, apperrors.ErrIndexGenerationMismatch)
	}
	return g.idx, nil
}

// Store returns the document store the generation was built from. Restored
// generations have none.
func (g *Generation) Store() (store.Store, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateRetired {
		return nil, fmt.Errorf("generation %d is retired: %w", g.id, apperrors.ErrIndexGenerationMismatch)
	}
	return g.docs, nil
}

func (g *Generation) refCount() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refs
}

// ready publishes a built index. It is only called before the generation is
// visible to queries.
func (g *Generation) ready(idx *index.Index, docs store.Store, closeStore func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idx = idx
	g.docs = docs
	g.closeStore = closeStore
	g.builtAt = time.Now()
	g.state = StateReady
}

// acquire takes a query reference. It fails only for retired generations.
func (g *Generation) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateRetired {
		return false
	}
	g.refs++
	return true
}

func (g *Generation) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs--
	if g.refs < 0 {
		panic(fmt.Sprintf("generation %d released more often than acquired", g.id))
	}
	if g.refs == 0 && g.state == StateSuperseded {
		g.retireLocked()
	}
}

// supersede marks the generation as replaced and retires it at once if no
// query holds it.
func (g *Generation) supersede() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateReady {
		return
	}
	g.state = StateSuperseded
	if g.refs == 0 {
		g.retireLocked()
	}
}

func (g *Generation) retireLocked() {
	g.state = StateRetired
	g.idx = nil
	g.docs = nil
	var closeErr error
	if g.closeStore != nil {
		closeErr = g.closeStore()
		g.closeStore = nil
	}
	if g.onRetire != nil {
		g.onRetire(g, closeErr)
	}
}

// GenerationInfo describes a generation for operators.
type GenerationInfo struct {
	ID            uint64    `json:"id"`
	State         string    `json:"state"`
	Documents     int       `json:"documents"`
	Terms         int       `json:"terms"`
	AvgDocLength  float64   `json:"avg_doc_length"`
	Tokenizer     string    `json:"tokenizer"`
	Fingerprint   string    `json:"fingerprint"`
	BuiltAt       time.Time `json:"built_at"`
	ActiveQueries int64     `json:"active_queries"`
}

func (g *Generation) info() GenerationInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	info := GenerationInfo{
		ID:            g.id,
		State:         g.state.String(),
		BuiltAt:       g.builtAt,
		ActiveQueries: g.refs,
	}
	if g.idx != nil {
		info.Documents = g.idx.DocumentCount()
		info.Terms = g.idx.TermCount()
		info.AvgDocLength = g.idx.AverageDocumentLength()
		info.Tokenizer = g.idx.Tokenizer()
		info.Fingerprint = g.idx.Fingerprint()
	}
	return info
}
