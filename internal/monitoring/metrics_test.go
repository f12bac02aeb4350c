package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/matching"
	"github.com/meetsmatch/matchengine/internal/memstore"
)

func newTestProvider() (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestEngineMetrics_RecordsEngineActivity(t *testing.T) {
	provider, reader := newTestProvider()
	metrics, err := NewEngineMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	store := memstore.New()
	engine := matching.NewEngine(store, store, matching.WithMetrics(metrics))

	_, err = engine.RecordSwipe(ctx, "alice", "bob", matching.DispositionLike)
	require.NoError(t, err)
	_, err = engine.RecordSwipe(ctx, "bob", "alice", matching.DispositionSuperLike)
	require.NoError(t, err)
	_, err = engine.RecordSwipe(ctx, "bob", "alice", matching.DispositionSuperLike)
	require.NoError(t, err)
	_, err = engine.RecordSwipe(ctx, "bob", "bob", matching.DispositionLike)
	require.Error(t, err)

	data := collect(t, reader)
	assert.Equal(t, int64(3), sumOf(t, data["swipes_recorded_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["matches_created_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["match_readbacks_total"]))

	histogram, ok := data["record_swipe_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range histogram.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(4), count)
}

func TestEngineMetrics_DirectCalls(t *testing.T) {
	provider, reader := newTestProvider()
	metrics, err := NewEngineMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.ChannelRepaired(ctx)
	metrics.EnsureMatchRetried(ctx)
	metrics.EnsureMatchRetried(ctx)
	metrics.ObserveRecordSwipe(ctx, time.Millisecond, apperrors.NewStorageUnavailableError("put decision", errors.New("down")))

	data := collect(t, reader)
	assert.Equal(t, int64(1), sumOf(t, data["channel_repairs_total"]))
	assert.Equal(t, int64(2), sumOf(t, data["ensure_match_retries_total"]))
}

func TestHTTPMetrics_GinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	provider, reader := newTestProvider()
	httpMetrics, err := NewHTTPMetrics(provider)
	require.NoError(t, err)

	router := gin.New()
	router.Use(httpMetrics.GinMiddleware())
	router.GET("/v1/matches/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/matches/m1", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	data := collect(t, reader)
	assert.Equal(t, int64(3), sumOf(t, data["http_requests_total"]))
	assert.Equal(t, int64(0), sumOf(t, data["http_active_requests"]))
}

func TestGetStatusClass(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{101, "1xx"},
		{200, "2xx"},
		{304, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, getStatusClass(tt.code))
	}
}
