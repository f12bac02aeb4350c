// Package app builds a matching engine and its backends from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nats-io/nats.go"

	"github.com/meetsmatch/matchengine/internal/cache"
	"github.com/meetsmatch/matchengine/internal/config"
	"github.com/meetsmatch/matchengine/internal/database"
	"github.com/meetsmatch/matchengine/internal/dynamo"
	"github.com/meetsmatch/matchengine/internal/events"
	"github.com/meetsmatch/matchengine/internal/matching"
	"github.com/meetsmatch/matchengine/internal/memstore"
	"github.com/meetsmatch/matchengine/internal/monitoring"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

// App holds the wired engine and everything that must be closed with it.
type App struct {
	Config      *config.Config
	Logger      *telemetry.Logger
	Engine      *matching.Engine
	Health      *monitoring.HealthChecker
	HTTPMetrics *monitoring.HTTPMetrics

	db      *database.DB
	closers []func() error
}

// Options tunes how backends are opened.
type Options struct {
	Version string
	// Instrumented wraps SQL and Redis clients with OpenTelemetry.
	Instrumented bool
}

// New opens the configured stores, cache and publisher and builds the engine.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *telemetry.Logger, opts Options) (_ *App, err error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Health: monitoring.NewHealthChecker("matchengine", opts.Version),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	decisions, matches, err := a.openStores(ctx, opts)
	if err != nil {
		return nil, err
	}

	engineMetrics, err := monitoring.NewEngineMetrics(nil)
	if err != nil {
		return nil, err
	}
	a.HTTPMetrics, err = monitoring.NewHTTPMetrics(nil)
	if err != nil {
		return nil, err
	}

	engineOpts := []matching.Option{
		matching.WithConfig(cfg.EngineConfig()),
		matching.WithMetrics(engineMetrics),
		matching.WithLogger(logger),
	}

	if cfg.RedisAddr != "" {
		resultCache, err := a.openCache(ctx, opts)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, matching.WithResultCache(resultCache))
	}

	var publishers events.Fanout
	if cfg.NATSURL != "" {
		conn, err := events.Connect(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Drain)
		a.Health.RegisterOptionalCheck("events", 0, func(context.Context) error {
			if status := conn.Status(); status != nats.CONNECTED {
				return fmt.Errorf("nats connection is %s", status)
			}
			return nil
		})
		publishers = append(publishers, events.NewNATSPublisher(conn, cfg.NATSSubject))
	}

	if cfg.AsynqRedisURL != "" {
		redisOpt, err := asynq.ParseRedisURI(cfg.AsynqRedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse ASYNQ_REDIS_URL: %w", err)
		}
		client := asynq.NewClient(redisOpt)
		a.closers = append(a.closers, client.Close)
		publishers = append(publishers, events.NewAsynqPublisher(client, cfg.AsynqQueue))
	}

	switch len(publishers) {
	case 0:
	case 1:
		engineOpts = append(engineOpts, matching.WithEventPublisher(publishers[0]))
	default:
		engineOpts = append(engineOpts, matching.WithEventPublisher(publishers))
	}

	a.Engine = matching.NewEngine(decisions, matches, engineOpts...)

	logger.WithContext(ctx).WithFields(map[string]interface{}{
		"operation":    "app_start",
		"store_driver": cfg.StoreDriver,
		"cache":        cfg.RedisAddr != "",
		"events":       cfg.NATSURL != "",
		"queue":        cfg.AsynqRedisURL != "",
	}).Info("Matching engine ready")
	return a, nil
}

func (a *App) openStores(ctx context.Context, opts Options) (matching.DecisionStore, matching.MatchStore, error) {
	cfg := a.Config
	switch cfg.StoreDriver {
	case config.StoreMemory:
		store := memstore.New()
		return store, store, nil

	case config.StorePostgres, config.StoreSQLite:
		db, err := database.Open(ctx, database.Config{
			Driver:       cfg.StoreDriver,
			URL:          cfg.DatabaseURL,
			Host:         cfg.DBHost,
			Port:         cfg.DBPort,
			User:         cfg.DBUser,
			Password:     cfg.DBPassword,
			DBName:       cfg.DBName,
			SSLMode:      cfg.DBSSLMode,
			SQLitePath:   cfg.SQLitePath,
			Instrumented: opts.Instrumented,
		})
		if err != nil {
			return nil, nil, err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		a.Health.RegisterDatabaseCheck("database", db.DB)
		return database.NewDecisionStore(db), database.NewMatchStore(db), nil

	case config.StoreDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		store := dynamo.NewStore(client, dynamo.TablesWithPrefix(cfg.DynamoTablePrefix))
		return store, store, nil
	}
	return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

func (a *App) openCache(ctx context.Context, opts Options) (*cache.MatchCache, error) {
	client, err := cache.NewClient(ctx, cache.RedisConfig{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}, opts.Instrumented)
	if err != nil {
		return nil, err
	}
	resultCache := cache.NewMatchCache(client, a.Config.MatchCacheTTL)
	a.closers = append(a.closers, resultCache.Close)
	a.Health.RegisterOptionalCheck("cache", 100*time.Millisecond, resultCache.Health)
	return resultCache, nil
}

// NewNotificationWorker builds the consumer for queued match notifications.
// It returns nil when ASYNQ_REDIS_URL is unset.
func (a *App) NewNotificationWorker(handler events.MatchNotificationHandler) (*events.Worker, error) {
	if a.Config.AsynqRedisURL == "" {
		return nil, nil
	}
	worker, err := events.NewWorker(a.Config.AsynqRedisURL, a.Config.AsynqQueue, a.Config.AsynqConcurrency, handler)
	if err != nil {
		return nil, err
	}
	a.Health.RegisterOptionalCheck("notifications", 0, worker.Healthy)
	return worker, nil
}

// Migrate applies the SQL schema. Other stores are provisioned outside the
// service and need nothing here.
func (a *App) Migrate(ctx context.Context) error {
	if a.db == nil {
		a.Logger.WithContext(ctx).WithFields(map[string]interface{}{
			"operation":    "migrate",
			"store_driver": a.Config.StoreDriver,
		}).Info("Store has no schema to migrate")
		return nil
	}
	return a.db.Migrate(ctx)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
