package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meetsmatch/matchengine/internal/app"
	"github.com/meetsmatch/matchengine/internal/bothandler"
	"github.com/meetsmatch/matchengine/internal/events"
	"github.com/meetsmatch/matchengine/internal/httpserver"
	"github.com/meetsmatch/matchengine/internal/middleware"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

const webhookPath = "/telegram/webhook"

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Migrate bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when configured, the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "apply the SQL schema before serving")

	return cmd
}

func serve(ctx context.Context, opts *ServeOptions) error {
	cfg, logger, err := loadRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	log := logger.WithContext(ctx).WithField("operation", "serve")

	otelConfig := telemetry.LoadConfigFromEnv()
	otelConfig.ServiceVersion = version
	shutdownOtel, err := telemetry.InitializeOpenTelemetry(ctx, otelConfig)
	if err != nil {
		return err
	}
	defer shutdownOtel()

	sentryEnabled, err := middleware.InitSentry(middleware.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     "matchengine@" + version,
	})
	if err != nil {
		return err
	}
	if sentryEnabled {
		defer middleware.FlushSentry(2 * time.Second)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(ctx, cfg, logger, app.Options{Version: version, Instrumented: otelConfig.Enabled})
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Migrate {
		if err := a.Migrate(ctx); err != nil {
			return err
		}
	}

	serverOpts := []httpserver.Option{
		httpserver.WithLogger(logger),
		httpserver.WithHealthChecker(a.Health),
		httpserver.WithHTTPMetrics(a.HTTPMetrics),
	}

	var telegram *bot.Bot
	var botHandler *bothandler.Handler
	if cfg.TelegramBotToken != "" {
		telegram, err = bot.New(cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		botHandler = bothandler.NewHandler(telegram, a.Engine,
			bothandler.WithLogger(logger),
			bothandler.WithWebhookSecret(cfg.TelegramWebhookSecret))

		if cfg.TelegramWebhookURL != "" {
			serverOpts = append(serverOpts, httpserver.WithRoutes(func(r *gin.Engine) {
				r.POST(webhookPath, botHandler.HandleWebhook)
			}))
		}
	}

	var notifications *events.Worker
	if botHandler != nil {
		notifications, err = a.NewNotificationWorker(botHandler)
		if err != nil {
			return err
		}
	} else if cfg.AsynqRedisURL != "" {
		log.Warn("ASYNQ_REDIS_URL is set without TELEGRAM_BOT_TOKEN; match notifications stay queued")
	}

	serverConfig := httpserver.DefaultConfig()
	serverConfig.Addr = cfg.HTTPAddr
	serverConfig.AllowedOrigins = cfg.AllowedOrigins()
	server := httpserver.New(serverConfig, a.Engine, serverOpts...)

	if telegram != nil && cfg.TelegramWebhookURL != "" {
		url := strings.TrimSuffix(cfg.TelegramWebhookURL, "/") + webhookPath
		if _, err := telegram.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:         url,
			SecretToken: cfg.TelegramWebhookSecret,
		}); err != nil {
			return fmt.Errorf("failed to set telegram webhook: %w", err)
		}
		log.WithField("webhook_url", url).Info("Telegram webhook registered")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if notifications != nil {
		g.Go(func() error {
			log.Info("Match notification worker started")
			return notifications.Run(gctx)
		})
	}

	if telegram != nil && cfg.TelegramWebhookURL == "" {
		if _, err := telegram.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
			log.WithError(err).Warn("Failed to remove telegram webhook")
		}
		botHandler.RegisterHandlers(telegram)
		g.Go(func() error {
			log.Info("Telegram bot started in polling mode")
			telegram.Start(gctx)
			return nil
		})
	}

	err = g.Wait()
	log.Info("matchd stopped")
	return err
}
