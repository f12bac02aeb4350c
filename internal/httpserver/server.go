// Package httpserver exposes the matching engine over a gin HTTP API.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/meetsmatch/matchengine/internal/matching"
	"github.com/meetsmatch/matchengine/internal/middleware"
	"github.com/meetsmatch/matchengine/internal/monitoring"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

// Engine is the part of matching.Engine the API serves.
type Engine interface {
	RecordSwipe(ctx context.Context, actorID, targetID string, disposition matching.Disposition) (matching.SwipeOutcome, error)
	GetMatch(ctx context.Context, matchID string) (matching.Match, error)
	GetChannel(ctx context.Context, channelID string) (matching.Channel, error)
	ListMatches(ctx context.Context, partyID string, limit int) ([]matching.Match, error)
}

var _ Engine = (*matching.Engine)(nil)

type Config struct {
	Addr            string
	ServiceName     string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ServiceName:     "matchengine",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server owns the router and the listening http.Server.
type Server struct {
	config      Config
	engine      Engine
	logger      *telemetry.Logger
	health      *monitoring.HealthChecker
	httpMetrics *monitoring.HTTPMetrics
	extra       []func(*gin.Engine)
	handler     http.Handler
}

type Option func(*Server)

func WithLogger(logger *telemetry.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithHealthChecker(health *monitoring.HealthChecker) Option {
	return func(s *Server) { s.health = health }
}

func WithHTTPMetrics(metrics *monitoring.HTTPMetrics) Option {
	return func(s *Server) { s.httpMetrics = metrics }
}

// WithRoutes registers additional routes, such as the bot webhook, on the
// root router.
func WithRoutes(register func(*gin.Engine)) Option {
	return func(s *Server) { s.extra = append(s.extra, register) }
}

func New(config Config, engine Engine, opts ...Option) *Server {
	s := &Server{config: config, engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = telemetry.GetGlobalLogger()
	}
	if s.health == nil {
		s.health = monitoring.NewHealthChecker(config.ServiceName, "dev")
	}
	s.handler = s.buildHandler()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildHandler() http.Handler {
	router := gin.New()
	router.Use(otelgin.Middleware(s.config.ServiceName))
	// Metrics and logging wrap ErrorHandler so they see the rendered status.
	if s.httpMetrics != nil {
		router.Use(s.httpMetrics.GinMiddleware())
	}
	router.Use(
		middleware.LoggingMiddleware(s.logger, nil),
		middleware.ErrorHandler(),
	)

	router.GET("/health", s.health.HealthHandler())
	router.GET("/live", s.health.LivenessHandler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1", middleware.ActorMiddleware())
	v1.POST("/swipes", s.recordSwipe)
	v1.GET("/matches", s.listMatches)
	v1.GET("/matches/:id", s.getMatch)
	v1.GET("/channels/:id", s.getChannel)

	for _, register := range s.extra {
		register(router)
	}

	return cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.ActorIDHeader, middleware.CorrelationIDHeader},
		ExposedHeaders: []string{middleware.CorrelationIDHeader},
	}).Handler(router)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	logger := s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"operation": "http_server",
		"addr":      s.config.Addr,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
