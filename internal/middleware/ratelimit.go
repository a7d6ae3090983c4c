package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Области лимита: публичные маршруты считаются по IP, защищённые - по identity.
const (
	RateScopePublic = "public"
	RateScopeUser   = "user"
)

// RateLimitMiddleware - fixed window в Redis, одно окно на (scope, вызывающий).
// Путь в ключ не входит: иначе лимит обходится перебором :id.
// Для RateScopeUser монтируется после AuthMiddleware. Без Redis лимит не применяется.
func RateLimitMiddleware(rdb *redis.Client, scope string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || limit <= 0 {
			return c.Next()
		}

		key := rateLimitKey(c, scope)

		ctx := c.UserContext()
		var incr *redis.IntCmd
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			return nil
		})
		if err != nil {
			return c.Next() // fail open
		}

		count := incr.Val()
		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
				"code":  "rate_limited",
			})
		}

		return c.Next()
	}
}

func rateLimitKey(c *fiber.Ctx, scope string) string {
	if id := GetIdentity(c); !id.IsZero() {
		return fmt.Sprintf("rl:%s:id:%s", scope, id)
	}
	return fmt.Sprintf("rl:%s:ip:%s", scope, c.IP())
}
