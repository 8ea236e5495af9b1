package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sma-discipline-api/internal/config"
	"github.com/noah-isme/sma-discipline-api/internal/utils"
)

// HealthCheck reports liveness plus enough identity to tell deployments
// apart on a shared cluster.
func HealthCheck(cfg config.Config) fiber.Handler {
	startedAt := time.Now().UTC()

	return func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, "service healthy", fiber.Map{
			"status":      "ok",
			"service":     cfg.AppName,
			"environment": cfg.AppEnv,
			"started_at":  startedAt,
			"uptime":      time.Since(startedAt).Round(time.Second).String(),
		})
	}
}
