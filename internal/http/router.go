package http

import (
	"time"

	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/http/handlers"
	"github.com/collateral-pay/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth    *handlers.AuthHandler
	Channel *handlers.ChannelHandler
	Account *handlers.AccountHandler
	WSHub   *handlers.WSHub
}

// SetupRouter wires the routes. rdb may be nil: rate limiting is then off.
func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		ExposeHeaders: "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	public := api.Group("/auth", middleware.RateLimitMiddleware(rdb, middleware.RateScopePublic, cfg.RateLimitPerMinute, time.Minute))
	public.Post("/challenge", h.Auth.Challenge)
	public.Post("/verify", h.Auth.Verify)

	// Protected endpoints
	protected := api.Group("",
		middleware.AuthMiddleware(cfg, log),
		middleware.RateLimitMiddleware(rdb, middleware.RateScopeUser, cfg.RateLimitPerMinute, time.Minute),
	)

	// Vault
	protected.Get("/vault/suggest", h.Channel.SuggestVault)

	// Channels
	protected.Post("/channels", h.Channel.CreateChannel)
	protected.Get("/channels", h.Channel.ListChannels)
	protected.Get("/channels/:id", h.Channel.GetChannel)
	protected.Get("/channels/:id/events", h.Channel.GetChannelEvents)
	protected.Post("/channels/:id/lock", h.Channel.LockCollateral)
	protected.Post("/channels/:id/pay", h.Channel.Pay)
	protected.Post("/channels/:id/withdraw", h.Channel.Withdraw)

	// Ledger (read-only)
	protected.Get("/accounts/:address", h.Account.GetNativeAccount)
	protected.Get("/token-accounts/:address", h.Account.GetTokenAccount)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Post("/reconcile", h.Account.Reconcile)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", middleware.AuthMiddleware(cfg, log), websocket.New(h.WSHub.HandleWS))
}
