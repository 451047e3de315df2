package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/service"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
)

type recordingMarker struct {
	generation uint64
	ids        []string
}

func (r *recordingMarker) MarkIndexed(_ context.Context, generation uint64, ids []string) error {
	r.generation = generation
	r.ids = ids
	return nil
}

func setup(t *testing.T) (*service.Service, *recordingMarker, *metrics.Metrics, kafka.MessageHandler) {
	t.Helper()
	svc, err := service.New(service.Options{Tokenizer: "simple", Scorer: "bm25", Workers: 2})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	marker := &recordingMarker{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return svc, marker, m, HandleMessage(svc, marker, m)
}

func encode(t *testing.T, req proto.IndexRequest) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func TestHandleMessageIndexes(t *testing.T) {
	svc, marker, m, handle := setup(t)
	err := handle(context.Background(), []byte("batch-1"), encode(t, proto.IndexRequest{Documents: []proto.Document{
		{ID: "1", Fields: map[string]string{"body": "the cat sat"}},
		{ID: "2", Fields: map[string]string{"body": "the dog sat"}},
	}}))
	require.NoError(t, err)

	res, err := svc.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, uint64(1), marker.generation)
	assert.Equal(t, []string{"1", "2"}, marker.ids)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestMessagesTotal.WithLabelValues("indexed")))
}

func TestHandleMessageDropsUndecodable(t *testing.T) {
	_, _, m, handle := setup(t)
	err := handle(context.Background(), nil, []byte("{not json"))
	assert.ErrorIs(t, err, kafka.ErrDrop)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestMessagesTotal.WithLabelValues("rejected")))
}

func TestHandleMessageCommitsFailedBuild(t *testing.T) {
	svc, marker, m, handle := setup(t)
	err := handle(context.Background(), nil, encode(t, proto.IndexRequest{Documents: []proto.Document{{ID: "x"}}}))
	assert.NoError(t, err)
	assert.Nil(t, marker.ids)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestMessagesTotal.WithLabelValues("rejected")))
	_, ok := svc.Generation()
	assert.False(t, ok)
}

func TestHandleMessageCancelledLeavesUncommitted(t *testing.T) {
	_, _, _, handle := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := handle(ctx, nil, encode(t, proto.IndexRequest{Documents: []proto.Document{
		{ID: "1", Fields: map[string]string{"body": "x"}},
	}}))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, kafka.ErrDrop)
}
