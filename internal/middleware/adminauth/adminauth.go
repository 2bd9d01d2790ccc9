package adminauth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const Header = "X-Admin-Password"

// New guards admin routes with a shared password. An empty configured
// password rejects every request.
func New(password string, log *zap.Logger) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	want := []byte(password)

	return func(c *fiber.Ctx) error {
		got := []byte(c.Get(Header))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			log.Warn("Unauthorized admin request",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}
