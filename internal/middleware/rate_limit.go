package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit throttles a route group per authenticated user, falling back to
// the client IP for anonymous traffic.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return identifier + ":" + limiterSubject(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "rate limit exceeded",
			})
		},
	})
}

func limiterSubject(c *fiber.Ctx) string {
	if v := c.Locals("user_id"); v != nil {
		subject := fmt.Sprintf("%v", v)
		if subject != "" && subject != "0" && subject != "<nil>" {
			return subject
		}
	}
	return c.IP()
}
