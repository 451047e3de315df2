package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", PingCheck(up, StatusDown))
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("redis", PingCheck(down, StatusDegraded))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Components["redis"].Message)

	c.Register("store", PingCheck(down, StatusDown))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("redis", PingCheck(down, StatusDegraded))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("index", PingCheck(down, StatusDown))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}
