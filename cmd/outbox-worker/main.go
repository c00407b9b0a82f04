package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/comms"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/persistence"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/worker"
)

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

	adapter := comms.NewSmsAdapter(cfg.Sms, cfg.Outbox.SendTimeout, logger)
	store := repository.NewOutboxStore(pg.PoolHandle())
	metrics := observability.NewMetrics()

	outboxWorker := worker.NewOutboxWorker(store, adapter, cfg.Outbox, logger, metrics)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("outbox worker started",
		zap.Duration("poll_interval", cfg.Outbox.PollInterval),
		zap.Int("batch_limit", cfg.Outbox.BatchLimit),
	)
	if err := outboxWorker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("outbox worker stopped", zap.Error(err))
	}
}
