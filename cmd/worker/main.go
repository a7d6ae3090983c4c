package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/db"
	"github.com/collateral-pay/backend/internal/events"
	"github.com/collateral-pay/backend/internal/repositories"
	"github.com/collateral-pay/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)
	if cfg.IsMemoryStorage() {
		// in-memory state живёт только внутри api
		log.Fatal("worker requires STORAGE_DRIVER=postgres")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}

	var publisher events.Publisher
	if rdb != nil {
		defer rdb.Close()
		publisher = events.NewRedisPublisher(rdb, log)
	} else {
		log.Warn("REDIS_URL not set, invariant violations are only logged")
		publisher = events.NewMemoryBus()
	}

	store := repositories.NewPgStore(pool)
	reconciler := services.NewReconciler(store, publisher, log)
	authService := services.NewAuthService(repositories.NewChallengeRepo(pool), cfg, log)

	log.Info("worker started",
		zap.Duration("reconcile_interval", cfg.ReconcileInterval),
		zap.Duration("challenge_gc_period", cfg.ChallengeGCPeriod),
	)

	reconcileTicker := time.NewTicker(cfg.ReconcileInterval)
	gcTicker := time.NewTicker(cfg.ChallengeGCPeriod)
	defer reconcileTicker.Stop()
	defer gcTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runReconcile(ctx, reconciler, log)

	for {
		select {
		case <-reconcileTicker.C:
			runReconcile(ctx, reconciler, log)
		case <-gcTicker.C:
			runChallengeGC(ctx, authService, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runReconcile(ctx context.Context, reconciler *services.Reconciler, log *zap.Logger) {
	report, err := reconciler.Run(ctx)
	if err != nil {
		log.Error("reconcile failed", zap.Error(err))
		return
	}
	if len(report.Violations) > 0 {
		log.Error("invariant violations found",
			zap.Int("checked", report.Checked),
			zap.Int("violations", len(report.Violations)),
		)
		return
	}
	log.Info("reconcile ok", zap.Int("checked", report.Checked), zap.Duration("took", report.Duration))
}

func runChallengeGC(ctx context.Context, authService *services.AuthService, log *zap.Logger) {
	n, err := authService.PurgeChallenges(ctx)
	if err != nil {
		log.Error("failed to purge challenges", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("purged expired challenges", zap.Int64("count", n))
	}
}
