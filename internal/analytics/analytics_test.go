package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(SearchEvent{Type: EventSearch, Query: "cat", TotalHits: 2, LatencyMs: 4})
	agg.Track(SearchEvent{Type: EventSearch, Query: "cat", TotalHits: 2, LatencyMs: 2, CacheHit: true})
	agg.Track(SearchEvent{Type: EventZeroResult, Query: "zebra", LatencyMs: 6})
	agg.Track(IndexEvent{Type: EventIndexBuilt, Generation: 3})
	agg.Track(IndexEvent{Type: EventIndexFailed, Generation: 4})
	agg.Track("ignored")

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(1), stats.IndexBuilds)
	assert.Equal(t, int64(1), stats.IndexFailures)
	assert.Equal(t, uint64(3), stats.LastGeneration)
	assert.InDelta(t, 4.0, stats.AvgLatencyMs, 0.001)
	assert.Equal(t, []QueryCount{{Query: "cat", Count: 2}, {Query: "zebra", Count: 1}}, stats.TopQueries)
	assert.Equal(t, []QueryCount{{Query: "zebra", Count: 1}}, stats.ZeroResultQueries)
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := range maxLatencySamples + 50 {
		agg.Track(SearchEvent{Type: EventSearch, Query: "q", LatencyMs: int64(i)})
	}
	assert.Len(t, agg.latencies, maxLatencySamples)
}

func TestDecode(t *testing.T) {
	data, err := json.Marshal(IndexEvent{Type: EventIndexBuilt, Generation: 9})
	require.NoError(t, err)
	event, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), event.(IndexEvent).Generation)

	data, err = json.Marshal(SearchEvent{Type: EventZeroResult, Query: "q"})
	require.NoError(t, err)
	event, err = Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "q", event.(SearchEvent).Query)

	_, err = Decode([]byte(`{"type":"mystery"}`))
	assert.Error(t, err)
}

func TestHandleEventFeedsAggregator(t *testing.T) {
	agg := NewAggregator()
	data, _ := json.Marshal(SearchEvent{Type: EventSearch, Query: "x", TotalHits: 1})
	require.NoError(t, agg.HandleEvent()(context.Background(), nil, data))
	require.NoError(t, agg.HandleEvent()(context.Background(), nil, []byte("garbage")))
	assert.Equal(t, int64(1), agg.Stats().TotalSearches)
}

func TestCollectorBatchesAndFlushesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 2, time.Hour)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Query: "a"})
	c.Track(SearchEvent{Type: EventSearch, Query: "b"})
	c.Track(IndexEvent{Type: EventIndexBuilt, Generation: 1})
	c.Close()

	assert.Equal(t, 3, pub.count())
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 2)
	assert.Equal(t, "index_built:1", pub.batches[1][0].Key)
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 50, 10*time.Millisecond)
	c.Start(context.Background())
	defer c.Close()

	c.Track(SearchEvent{Type: EventSearch, Query: "a"})
	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorCountsFailedPublishes(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 100, 1, time.Hour)
	c.Start(context.Background())
	c.Track(SearchEvent{Type: EventSearch})
	c.Close()
	assert.Equal(t, int64(1), c.Dropped())
}

func TestHandlerServesStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(SearchEvent{Type: EventSearch, Query: "cat", TotalHits: 1})
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
}
