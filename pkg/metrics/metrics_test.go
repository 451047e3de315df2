package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.SearchQueriesTotal.WithLabelValues("hit").Inc()
	m.ActiveGeneration.Set(7)
	m.IngestMessagesTotal.WithLabelValues("indexed").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ActiveGeneration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestMessagesTotal.WithLabelValues("indexed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}
