package api

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"

	"github.com/sorariku/liffcall/pkg/internal/services"
)

// requireCronSecret authenticates the external timer. A mismatch is an
// authorization failure, not a scheduling error.
func requireCronSecret(c *fiber.Ctx) error {
	secret := viper.GetString("cron.secret")
	given := c.Get("x-vercel-cron-secret")
	if len(secret) == 0 || subtle.ConstantTimeCompare([]byte(secret), []byte(given)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "cron secret mismatch")
	}
	return c.Next()
}

func executeRetries(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	report := services.ExecuteDueRetries(c.UserContext(), limit)

	return c.JSON(fiber.Map{
		"success": true,
		"report":  report,
	})
}

func checkTimeouts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	report := services.SweepStaleCalls(c.UserContext(), limit)

	return c.JSON(fiber.Map{
		"success": true,
		"report":  report,
	})
}
