package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/dispatch-service/internal/api/http"
	"github.com/spec-kit/dispatch-service/internal/api/http/handlers"
	"github.com/spec-kit/dispatch-service/internal/auth"
	"github.com/spec-kit/dispatch-service/internal/closeout"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/persistence"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/service"
)

const idempotencyCacheTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	templates, err := closeout.LoadTemplateSet(cfg.Policy.IncidentTemplateFile)
	if err != nil {
		logger.Fatal("failed to load incident templates", zap.Error(err))
	}
	riskGate, err := closeout.LoadRiskRules(cfg.Policy.RiskRuleFile)
	if err != nil {
		logger.Fatal("failed to load risk rules", zap.Error(err))
	}
	verifier := closeout.NewEvidenceVerifier(closeout.EvidenceVerifierOptions{
		AllowedSchemes:  cfg.Evidence.AllowedSchemes,
		HeadValidation:  cfg.Evidence.StrictMode,
		RequireChecksum: cfg.Evidence.RequireChecksum,
		ProbeTimeout:    cfg.Evidence.ProbeTimeout,
	})

	pool := pg.PoolHandle()
	metrics := observability.NewMetrics()
	mutationStore := repository.NewMutationStore(pool)
	readStore := repository.NewReadStore(pool)
	outboxStore := repository.NewOutboxStore(pool)
	cache := repository.NewCachedIdempotencyReader(pool, redis.Client(), idempotencyCacheTTL, logger)

	orchestrator := pipeline.NewOrchestrator(mutationStore, cache, logger, metrics)
	dispatchService := service.New(
		logger,
		closeout.NewEngine(templates),
		riskGate,
		verifier,
		cfg.Intake,
		cfg.Auth,
	)
	dispatchService.RegisterHandlers(orchestrator)

	authMiddleware := auth.NewMiddleware(auth.NewVerifier(cfg.Auth))

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	requestTimeout := time.Duration(cfg.App.RequestTimeoutSeconds) * time.Second
	httptransport.RegisterMiddlewares(app, logger, metrics, requestTimeout)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, readStore, verifier),
		Dispatch:       handlers.NewDispatchHandler(orchestrator, logger),
		Tickets:        handlers.NewTicketsHandler(readStore),
		Ops:            handlers.NewOpsHandler(outboxStore, metrics, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("dispatch api started",
		zap.String("addr", cfg.App.Addr()),
		zap.String("env", cfg.App.Env),
	)

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
