package monitoring

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	Latency     int64        `json:"latency_ms"`
	LastChecked time.Time    `json:"last_checked"`
	Details     interface{}  `json:"details,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Service    string                     `json:"service"`
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	Goroutines int                        `json:"goroutines"`
	GoVersion  string                     `json:"go_version"`
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type componentCheck struct {
	check CheckFunc
	// A failing optional component degrades the service instead of making it
	// unhealthy.
	optional bool
	slow     time.Duration
	details  func() interface{}
}

// HealthChecker aggregates dependency probes into one report.
type HealthChecker struct {
	mu        sync.RWMutex
	startTime time.Time
	service   string
	version   string
	timeout   time.Duration
	checks    map[string]componentCheck
}

func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		service:   service,
		version:   version,
		timeout:   5 * time.Second,
		checks:    make(map[string]componentCheck),
	}
}

// RegisterCheck adds a required component. Responses slower than slow are
// reported as degraded.
func (hc *HealthChecker) RegisterCheck(name string, slow time.Duration, check CheckFunc) {
	hc.register(name, componentCheck{check: check, slow: slow})
}

// RegisterOptionalCheck adds a component the engine can run without, such as
// the result cache.
func (hc *HealthChecker) RegisterOptionalCheck(name string, slow time.Duration, check CheckFunc) {
	hc.register(name, componentCheck{check: check, slow: slow, optional: true})
}

// RegisterDatabaseCheck registers a database ping that also reports pool stats.
func (hc *HealthChecker) RegisterDatabaseCheck(name string, db *sql.DB) {
	hc.register(name, componentCheck{
		check: db.PingContext,
		slow:  time.Second,
		details: func() interface{} {
			stats := db.Stats()
			return map[string]interface{}{
				"open_connections": stats.OpenConnections,
				"in_use":           stats.InUse,
				"idle":             stats.Idle,
				"wait_count":       stats.WaitCount,
				"wait_duration":    stats.WaitDuration.String(),
			}
		},
	})
}

func (hc *HealthChecker) register(name string, check componentCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

func (hc *HealthChecker) runCheck(ctx context.Context, check componentCheck) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	start := time.Now()
	err := check.check(ctx)
	latency := time.Since(start)

	result := ComponentHealth{
		Status:      HealthStatusHealthy,
		Message:     "ok",
		Latency:     latency.Milliseconds(),
		LastChecked: time.Now(),
	}
	switch {
	case err != nil && check.optional:
		result.Status = HealthStatusDegraded
		result.Message = err.Error()
	case err != nil:
		result.Status = HealthStatusUnhealthy
		result.Message = err.Error()
	case check.slow > 0 && latency > check.slow:
		result.Status = HealthStatusDegraded
		result.Message = "slow response"
	}
	if err == nil && check.details != nil {
		result.Details = check.details()
	}
	return result
}

// Check runs every registered probe and returns the aggregated report.
func (hc *HealthChecker) Check(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	checks := make(map[string]componentCheck, len(hc.checks))
	for name, check := range hc.checks {
		names = append(names, name)
		checks[name] = check
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	components := make(map[string]ComponentHealth, len(names))
	overall := HealthStatusHealthy
	for _, name := range names {
		result := hc.runCheck(ctx, checks[name])
		components[name] = result
		switch {
		case result.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case result.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	return HealthResponse{
		Status:     overall,
		Service:    hc.service,
		Version:    hc.version,
		Timestamp:  time.Now(),
		Uptime:     time.Since(hc.startTime).Round(time.Second).String(),
		Components: components,
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
}

// HealthHandler returns a Gin handler for health checks
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.Check(c.Request.Context())

		statusCode := http.StatusOK
		if health.Status == HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, health)
	}
}

// LivenessHandler returns a simple liveness check
func (hc *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"uptime":    time.Since(hc.startTime).String(),
			"timestamp": time.Now(),
		})
	}
}
