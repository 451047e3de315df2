// Package tracing provides a lightweight span tree that travels through
// contexts and is logged via slog when the root span ends. Span methods are
// safe on a nil *Span, so unsampled requests cost nothing.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

// Tracer decides which requests get a root span.
type Tracer struct {
	enabled    bool
	sampleRate float64
	logger     *slog.Logger
}

// NewTracer returns a tracer sampling the given fraction of roots. A rate
// of zero or less with enabled set samples everything.
func NewTracer(enabled bool, sampleRate float64) *Tracer {
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1
	}
	return &Tracer{
		enabled:    enabled,
		sampleRate: sampleRate,
		logger:     slog.Default().With("component", "tracing"),
	}
}

// Start opens a root span if this request is sampled. traceID may be empty,
// in which case a new one is generated.
func (t *Tracer) Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if t == nil || !t.enabled || rand.Float64() >= t.sampleRate {
		return ctx, nil
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return StartSpan(ctx, name, traceID)
}

// StartSpan creates a new root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan creates a child of the span in ctx. Without a parent it
// returns ctx unchanged and a nil span.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{
		Name:      name,
		TraceID:   parent.TraceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey, child), child
}

// End records the span's end time and duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.mu.Unlock()
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Log writes the span tree to slog at debug level.
func (s *Span) Log() {
	if s == nil {
		return
	}
	s.logRecursive(slog.Default(), 0)
}

func (s *Span) logRecursive(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	logger.Debug("span", attrs...)
	for _, child := range children {
		child.logRecursive(logger, depth+1)
	}
}
