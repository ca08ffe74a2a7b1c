package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/maintenance-voice/internal/api/http"
	"github.com/spec-kit/maintenance-voice/internal/api/http/handlers"
	"github.com/spec-kit/maintenance-voice/internal/auth"
	"github.com/spec-kit/maintenance-voice/internal/config"
	"github.com/spec-kit/maintenance-voice/internal/events"
	"github.com/spec-kit/maintenance-voice/internal/messaging"
	"github.com/spec-kit/maintenance-voice/internal/observability"
	"github.com/spec-kit/maintenance-voice/internal/persistence"
	"github.com/spec-kit/maintenance-voice/internal/repository"
	"github.com/spec-kit/maintenance-voice/internal/resilience"
	"github.com/spec-kit/maintenance-voice/internal/service"
	"github.com/spec-kit/maintenance-voice/internal/voice/conversation"
	"github.com/spec-kit/maintenance-voice/internal/voice/dialogue"
	"github.com/spec-kit/maintenance-voice/internal/voice/intent"
	"github.com/spec-kit/maintenance-voice/internal/voice/speech"
	"github.com/spec-kit/maintenance-voice/internal/worker"
	apperrors "github.com/spec-kit/maintenance-voice/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(nil)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if pool == nil {
		logger.Fatal("POSTGRES_DSN is required")
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var (
		store conversation.Store
		redis *persistence.Redis
	)
	switch cfg.Conversation.Store {
	case "redis":
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		if err := redis.Ping(ctx); err != nil {
			logger.Fatal("conversation store unavailable", zap.Error(err))
		}
		store = conversation.NewRedisStore(redis.Client, cfg.Conversation.TTL())
	default:
		store = conversation.NewMemoryStore()
	}

	dispatcher := events.NewInMemoryDispatcher()
	var publisher messaging.Publisher
	if cfg.Notification.SNSTopicARN != "" {
		sns, err := messaging.NewSNSPublisher(ctx, cfg.Notification.AWSRegion, cfg.Notification.SNSTopicARN)
		if err != nil {
			logger.Fatal("failed to init sns publisher", zap.Error(err))
		}
		publisher = sns
	}
	service.NewNotificationService(dispatcher, publisher, logger).RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repository.NewTicketRepository(pool),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	breaker := resilience.BreakerConfig{
		FailureThreshold: cfg.Voice.BreakerFailures,
		Window:           cfg.Voice.BreakerWindow(),
		CoolDown:         cfg.Voice.BreakerCoolDown(),
	}
	backendClient := &http.Client{Transport: http.DefaultTransport}
	gateway := speech.NewGateway(speech.Config{
		BaseURL: cfg.Voice.ServiceURL,
		Timeout: cfg.Voice.Timeout(),
		Breaker: breaker,
	}, backendClient, logger, metrics)
	classifier := intent.NewClassifier(intent.Config{
		BaseURL: cfg.Voice.IntentServiceURL,
		Timeout: cfg.Voice.Timeout(),
		Breaker: breaker,
	}, backendClient, logger, metrics)

	actions, err := dialogue.NewDispatcher(ticketService, logger)
	if err != nil {
		logger.Fatal("failed to build action dispatcher", zap.Error(err))
	}
	orchestrator, err := dialogue.NewOrchestrator(dialogue.Dependencies{
		Store:       store,
		Speech:      gateway,
		Classifier:  classifier,
		Dispatcher:  actions,
		Logger:      logger,
		Metrics:     metrics,
		TurnTimeout: cfg.Voice.TurnTimeout(),
		SubTimeouts: []time.Duration{gateway.Timeout(), classifier.Timeout(), gateway.Timeout()},
	})
	if err != nil {
		logger.Fatal("failed to build orchestrator", zap.Error(err))
	}
	logger.Info("voice pipeline ready",
		zap.String("store", cfg.Conversation.Store),
		zap.Duration("turn_timeout", orchestrator.TurnTimeout()))

	sweeper := worker.NewConversationSweeper(store, cfg.Conversation.TTL(), cfg.Conversation.SweepInterval(), metrics, logger)
	go sweeper.Run(ctx)

	var tokens *auth.TokenManager
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set; trusting " + auth.CallerIDHeader + " header")
	}

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: cfg.App.BodyLimitMB * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{"code": de.Code, "message": de.Message}})
		},
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	deps := map[string]handlers.Pinger{"postgres": pg}
	if redis != nil {
		deps["redis"] = redis
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Voice:          handlers.NewVoiceHandler(orchestrator),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
