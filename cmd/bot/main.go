package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/agent"
	httptransport "github.com/spec-kit/handover-bot/internal/api/http"
	"github.com/spec-kit/handover-bot/internal/api/http/handlers"
	"github.com/spec-kit/handover-bot/internal/auth"
	"github.com/spec-kit/handover-bot/internal/bot"
	"github.com/spec-kit/handover-bot/internal/config"
	"github.com/spec-kit/handover-bot/internal/docstore"
	"github.com/spec-kit/handover-bot/internal/events"
	"github.com/spec-kit/handover-bot/internal/observability"
	"github.com/spec-kit/handover-bot/internal/persistence"
	"github.com/spec-kit/handover-bot/internal/repository"
	"github.com/spec-kit/handover-bot/internal/service"
	"github.com/spec-kit/handover-bot/internal/session"
	"github.com/spec-kit/handover-bot/internal/transport/telegram"
	"github.com/spec-kit/handover-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "hash-secret" {
		hashSecret(os.Args[2:], cfg.Auth.BcryptCost)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	store, closeStore, err := docstore.Open(ctx, cfg.Store, docstore.Dependencies{
		Postgres: pg,
		Redis:    redis,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to open document store", zap.Error(err))
	}
	defer closeStore()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	queue := repository.NewQueueStore(store, cfg.Store.HandoverDocument, logger, metrics)
	directoryRepo := repository.NewDirectory(store, cfg.Store.DirectoryDocument, logger, metrics)
	interactions := repository.NewInteractionLog(store, cfg.Store.InteractionsDoc, cfg.Interactions.MaxEntries, logger, metrics)

	var sessions session.Store
	if redis.Enabled() {
		sessions = session.NewRedisStore(redis.Client, cfg.Session.TTL())
	} else {
		sessions = session.NewMemoryStore(cfg.Session.TTL())
	}

	client, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, logger)
	if err != nil {
		logger.Fatal("failed to connect to telegram", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	limiter := auth.NewAttemptLimiter(cfg.Auth.AdminAttemptsPerMinute, cfg.Auth.AdminAttemptBurst)
	defer limiter.Stop()

	directoryService := service.NewDirectoryService(service.DirectoryDependencies{
		Directory:  directoryRepo,
		Verifier:   auth.NewSecretVerifier(cfg.Auth.AdminSecret, cfg.Auth.AdminSecretHash),
		Limiter:    limiter,
		Tokens:     tokens,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		Queue:           queue,
		Directory:       directoryRepo,
		Sessions:        sessions,
		Notifier:        client,
		Dispatcher:      dispatcher,
		Logger:          logger,
		Metrics:         metrics,
		EndDialogSignal: cfg.App.EndDialogSignal,
	})
	relayService := service.NewRelayService(service.RelayDependencies{
		Queue:           queue,
		Notifier:        client,
		Ender:           escalationService,
		Dispatcher:      dispatcher,
		Logger:          logger,
		Metrics:         metrics,
		EndDialogSignal: cfg.App.EndDialogSignal,
	})
	assistantService := service.NewAssistantService(service.AssistantDependencies{
		Agent:        agent.NewHTTPAgent(cfg.Agent.URL, cfg.Agent.APIKey, cfg.Agent.Timeout()),
		Sessions:     sessions,
		Interactions: interactions,
		Escalator:    escalationService,
		Notifier:     client,
		Logger:       logger,
		MaxHistory:   cfg.Session.MaxHistory,
	})

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	// The outbox outlives ctx so events from in-flight updates still go out.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	webhookWorker := worker.StartNotificationWorker(workerCtx, notificationService, logger)

	router := bot.NewRouter(bot.Dependencies{
		Directory:  directoryService,
		Escalation: escalationService,
		Relay:      relayService,
		Assistant:  assistantService,
		Notifier:   client,
		Logger:     logger,
	})
	poller := telegram.NewPoller(client, router, telegram.PollerConfig{
		PollTimeoutSeconds: cfg.Telegram.PollTimeoutSeconds,
		Workers:            cfg.Telegram.Workers,
		UpdateTimeout:      cfg.Telegram.UpdateTimeout(),
	}, logger)

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, redis),
		Ops:            handlers.NewOpsHandler(escalationService, directoryService),
		Token:          handlers.NewTokenHandler(directoryService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, directoryRepo),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("ops api listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	drainInOrder(func() {
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Warn("ops api shutdown", zap.Error(err))
		}
	}, pollerDone, stopWorker, webhookWorker)
}

// drainInOrder stops intake, waits for in-flight updates to finish and only
// then flushes the webhook outbox.
func drainInOrder(stopIntake func(), pollerDone <-chan struct{}, stopWorker func(), w *worker.WebhookWorker) {
	stopIntake()
	<-pollerDone
	stopWorker()
	if w != nil {
		w.Wait()
	}
}

// hashSecret prints a bcrypt hash suitable for ADMIN_SECRET_HASH.
func hashSecret(args []string, cost int) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: bot hash-secret <secret>")
		os.Exit(2)
	}
	hash, err := auth.HashSecret(args[0], cost)
	if err != nil {
		log.Fatalf("failed to hash secret: %v", err)
	}
	fmt.Println(hash)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
