package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
)

// Collector buffers events without blocking the caller and publishes them
// in batches, when a batch fills or every flush interval.
type Collector struct {
	publisher     kafka.Publisher
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher kafka.Publisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan any, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It drains what is buffered when ctx is
// cancelled or Close is called.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.dropped.Add(int64(len(batch)))
			c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.finalFlush(flush)
				return
			}
			batch = append(batch, kafka.Event{Key: eventKey(event), Value: event})
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
		drain:
			for {
				select {
				case event, ok := <-c.eventCh:
					if !ok {
						break drain
					}
					batch = append(batch, kafka.Event{Key: eventKey(event), Value: event})
				default:
					break drain
				}
			}
			c.finalFlush(flush)
			return
		}
	}
}

func (c *Collector) finalFlush(flush func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flush(ctx)
}

// Track queues an event, dropping it when the buffer is full.
func (c *Collector) Track(event any) {
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Dropped is the number of events lost to a full buffer or a failed publish.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the final flush. Track must
// not be called afterwards.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}
