// Package analytics records what the search service does: every query and
// every index build becomes an event, published to Kafka by the Collector
// and folded into running statistics by the Aggregator.
package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventIndexBuilt  EventType = "index_built"
	EventIndexFailed EventType = "index_failed"
)

type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Generation uint64    `json:"generation"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

type IndexEvent struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Decode reads an encoded event, choosing the concrete type by its "type"
// field.
func Decode(data []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding analytics event: %w", err)
	}
	switch head.Type {
	case EventSearch, EventZeroResult:
		var e SearchEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding search event: %w", err)
		}
		return e, nil
	case EventIndexBuilt, EventIndexFailed:
		var e IndexEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding index event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", head.Type)
	}
}

func eventKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return string(e.Type)
	case IndexEvent:
		return fmt.Sprintf("%s:%d", e.Type, e.Generation)
	default:
		return "analytics"
	}
}
