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
	"github.com/collateral-pay/backend/internal/services"
	"go.uber.org/zap"
)

// Notify Bridge подписывается на события каналов в Redis и пересылает их на WEBHOOK_URL.

const deliveryAttempts = 3

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.WebhookURL == "" {
		log.Fatal("WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	if rdb == nil {
		log.Fatal("REDIS_URL is required")
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	webhook := services.NewWebhookClient(cfg.WebhookURL, cfg.WebhookSecret, log)

	err = subscriber.Subscribe(ctx, events.StreamChannel, func(event events.Event) {
		log.Info("forwarding event", zap.String("type", event.Type))
		forward(ctx, webhook, event, log)
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("notify-bridge started", zap.String("stream", events.StreamChannel))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}

func forward(ctx context.Context, webhook *services.WebhookClient, event events.Event, log *zap.Logger) {
	backoff := time.Second
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		err := webhook.Deliver(ctx, event)
		if err == nil {
			return
		}
		log.Warn("webhook delivery failed",
			zap.String("type", event.Type),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	log.Error("event dropped after retries", zap.String("type", event.Type))
}
