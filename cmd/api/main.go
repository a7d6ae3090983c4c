package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/db"
	"github.com/collateral-pay/backend/internal/events"
	apphttp "github.com/collateral-pay/backend/internal/http"
	"github.com/collateral-pay/backend/internal/http/handlers"
	"github.com/collateral-pay/backend/internal/repositories"
	"github.com/collateral-pay/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var (
		store      repositories.Store
		challenges repositories.ChallengeStore
	)
	if cfg.IsMemoryStorage() {
		mem := repositories.NewMemStore()
		store, challenges = mem, mem
		log.Warn("using in-memory storage, state is lost on restart")
	} else {
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		store = repositories.NewPgStore(pool)
		challenges = repositories.NewChallengeRepo(pool)
	}

	// Redis (опционально)
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	publisher, subscriber := eventBus(rdb, log)

	// без redis notify-bridge ничего не получит, доставляем из процесса.
	// MemoryBus вызывает подписчика в своей горутине, запросы POST не ждут.
	if rdb == nil && cfg.WebhookURL != "" {
		webhook := services.NewWebhookClient(cfg.WebhookURL, cfg.WebhookSecret, log)
		err := subscriber.Subscribe(ctx, events.StreamChannel, func(event events.Event) {
			if err := webhook.Deliver(ctx, event); err != nil {
				log.Warn("webhook delivery failed", zap.String("type", event.Type), zap.Error(err))
			}
		})
		if err != nil {
			log.Fatal("failed to subscribe webhook", zap.Error(err))
		}
	}

	// Services
	channelService := services.NewChannelService(store, publisher, cfg, log)
	authService := services.NewAuthService(challenges, cfg, log)
	reconciler := services.NewReconciler(store, publisher, log)

	// Handlers
	wsHub := handlers.NewWSHub(cfg, subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to start ws hub", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, apphttp.Handlers{
		Auth:    handlers.NewAuthHandler(authService, log),
		Channel: handlers.NewChannelHandler(channelService, cfg, log),
		Account: handlers.NewAccountHandler(store, reconciler, cfg, log),
		WSHub:   wsHub,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server",
		zap.String("addr", addr),
		zap.String("storage", cfg.StorageDriver),
		zap.String("program_id", cfg.ProgramID.String()),
	)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func eventBus(rdb *redis.Client, log *zap.Logger) (events.Publisher, events.Subscriber) {
	if rdb == nil {
		bus := events.NewMemoryBus()
		return bus, bus
	}
	return events.NewRedisPublisher(rdb, log), events.NewRedisSubscriber(rdb, log)
}
