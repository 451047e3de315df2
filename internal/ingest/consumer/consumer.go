// Package consumer reads document batches from the ingest topic and
// indexes each one as a new generation.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
)

// Marker records which generation indexed a set of documents.
// *source.SQLSource implements it.
type Marker interface {
	MarkIndexed(ctx context.Context, generation uint64, ids []string) error
}

// IndexConsumer wraps a Kafka consumer to drive indexing.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start consumes until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a handler that indexes each proto.IndexRequest.
// Undecodable messages and failed builds are committed; a build is not
// retried. Only an interrupted wait for the indexing slot leaves the
// message for redelivery. marker and m may be nil.
func HandleMessage(svc *service.Service, marker Marker, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	count := func(status string) {
		if m != nil {
			m.IngestMessagesTotal.WithLabelValues(status).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[proto.IndexRequest](value)
		if err != nil {
			count("rejected")
			return fmt.Errorf("%w: %w", kafka.ErrDrop, err)
		}
		logger.Debug("processing index batch", "key", string(key), "documents", len(req.Documents))

		resp, err := service.IndexRequest(ctx, svc, req)
		var failed *apperrors.IndexingFailedError
		switch {
		case errors.As(err, &failed):
			if errors.Is(err, apperrors.ErrInvalidDocument) || errors.Is(err, apperrors.ErrEmptyCorpus) {
				count("rejected")
			} else {
				count("failed")
			}
			logger.Warn("index batch not applied", "key", string(key), "error", err)
			return nil
		case err != nil:
			return fmt.Errorf("indexing batch %s: %w", key, err)
		}
		count("indexed")

		if marker != nil {
			ids := make([]string, len(req.Documents))
			for i, d := range req.Documents {
				ids[i] = d.ID
			}
			if err := marker.MarkIndexed(ctx, resp.Generation, ids); err != nil {
				logger.Error("marking documents indexed", "generation", resp.Generation, "error", err)
			}
		}
		logger.Info("index batch applied",
			"generation", resp.Generation,
			"documents", resp.Documents,
			"terms", resp.Terms,
		)
		return nil
	}
}
