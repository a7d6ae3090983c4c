package middleware

import (
	"strings"

	"github.com/collateral-pay/backend/internal/auth"
	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/keys"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const CtxIdentity = "identity"

// AuthMiddleware кладёт в контекст адрес из JWT. Токен берётся из
// Authorization: Bearer, а для websocket допускается ?token=.
func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr, ok := bearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or malformed authorization", "code": "unauthenticated"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token", "code": "unauthenticated"})
		}

		c.Locals(CtxIdentity, claims.Address)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		if q := c.Query("token"); q != "" {
			return q, true
		}
		return "", false
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenStr == authHeader || tokenStr == "" {
		return "", false
	}
	return tokenStr, true
}

// GetIdentity returns the verified caller, or keys.Zero outside AuthMiddleware.
func GetIdentity(c *fiber.Ctx) keys.Address {
	addr, _ := c.Locals(CtxIdentity).(keys.Address)
	return addr
}

// AdminMiddleware requires an address from ADMIN_ADDRESSES.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.IsAdmin(GetIdentity(c)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required", "code": "forbidden"})
		}
		return c.Next()
	}
}
