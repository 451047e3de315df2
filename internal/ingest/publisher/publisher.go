// Package publisher validates document batches and publishes them to the
// ingest topic, where the search process's index consumer picks them up.
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
)

// Receipt describes a published batch.
type Receipt struct {
	BatchID     string
	Documents   int
	ContentHash string
}

// Publisher turns corpora into ingest topic messages.
type Publisher struct {
	producer kafka.Publisher
	logger   *slog.Logger
}

func New(producer kafka.Publisher) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Publish validates docs and writes them as one proto.IndexRequest. A batch
// that would fail indexing is rejected here rather than on the consumer.
func (p *Publisher) Publish(ctx context.Context, docs []document.Document) (Receipt, error) {
	if len(docs) == 0 {
		return Receipt{}, apperrors.ErrEmptyCorpus
	}
	seen := make(map[string]struct{}, len(docs))
	var errs []error
	wire := make([]proto.Document, len(docs))
	for i, d := range docs {
		if err := document.Validate(d); err != nil {
			errs = append(errs, err)
		}
		if _, dup := seen[d.ID]; dup {
			errs = append(errs, fmt.Errorf("document %q appears twice: %w", d.ID, apperrors.ErrInvalidDocument))
		}
		seen[d.ID] = struct{}{}
		wire[i] = proto.Document{ID: d.ID, Fields: d.Fields}
	}
	if len(errs) > 0 {
		return Receipt{}, errors.Join(errs...)
	}

	receipt := Receipt{
		BatchID:     uuid.NewString(),
		Documents:   len(docs),
		ContentHash: contentHash(docs),
	}
	event := kafka.Event{
		Key:   receipt.BatchID,
		Value: proto.IndexRequest{Documents: wire},
	}
	if err := p.producer.PublishBatch(ctx, []kafka.Event{event}); err != nil {
		return Receipt{}, fmt.Errorf("publishing batch %s: %w", receipt.BatchID, err)
	}
	p.logger.Info("batch published",
		"batch_id", receipt.BatchID,
		"documents", receipt.Documents,
		"content_hash", receipt.ContentHash,
	)
	return receipt, nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

// contentHash fingerprints a corpus independently of document order.
func contentHash(docs []document.Document) string {
	ids := make([]string, len(docs))
	byID := make(map[string]document.Document, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		byID[d.ID] = d
	}
	slices.Sort(ids)
	h := sha256.New()
	for _, id := range ids {
		d := byID[id]
		fmt.Fprintf(h, "%s\x00", id)
		for _, name := range d.FieldNames() {
			fmt.Fprintf(h, "%s\x00%s\x00", name, d.Fields[name])
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
