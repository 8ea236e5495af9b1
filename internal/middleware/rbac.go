package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sma-discipline-api/internal/utils"
)

// RequireRole gates a route group to the listed roles. It relies on
// JWTProtected having populated the user_role local.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role := ""
		if v := c.Locals("user_role"); v != nil {
			role = strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))
		}
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
