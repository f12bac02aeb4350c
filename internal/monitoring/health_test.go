package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestHealthChecker_Aggregation(t *testing.T) {
	tests := []struct {
		name     string
		register func(hc *HealthChecker)
		expected HealthStatus
	}{
		{
			name:     "no components",
			register: func(hc *HealthChecker) {},
			expected: HealthStatusHealthy,
		},
		{
			name: "all healthy",
			register: func(hc *HealthChecker) {
				hc.RegisterCheck("store", time.Second, ok)
				hc.RegisterOptionalCheck("cache", time.Second, ok)
			},
			expected: HealthStatusHealthy,
		},
		{
			name: "optional component down",
			register: func(hc *HealthChecker) {
				hc.RegisterCheck("store", time.Second, ok)
				hc.RegisterOptionalCheck("cache", time.Second, func(context.Context) error {
					return errors.New("connection refused")
				})
			},
			expected: HealthStatusDegraded,
		},
		{
			name: "required component down",
			register: func(hc *HealthChecker) {
				hc.RegisterOptionalCheck("cache", time.Second, func(context.Context) error {
					return errors.New("connection refused")
				})
				hc.RegisterCheck("store", time.Second, func(context.Context) error {
					return errors.New("database is closed")
				})
			},
			expected: HealthStatusUnhealthy,
		},
		{
			name: "slow component",
			register: func(hc *HealthChecker) {
				hc.RegisterCheck("store", time.Nanosecond, func(context.Context) error {
					time.Sleep(time.Millisecond)
					return nil
				})
			},
			expected: HealthStatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("matchengine", "test")
			tt.register(hc)
			assert.Equal(t, tt.expected, hc.Check(context.Background()).Status)
		})
	}
}

func TestHealthChecker_HealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hc := NewHealthChecker("matchengine", "1.2.3")
	hc.RegisterCheck("store", time.Second, func(context.Context) error {
		return errors.New("database is closed")
	})

	router := gin.New()
	router.GET("/health", hc.HealthHandler())
	router.GET("/live", hc.LivenessHandler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, HealthStatusUnhealthy, body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "database is closed", body.Components["store"].Message)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
