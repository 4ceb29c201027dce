package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Middleware rejects requests without a verifiable participant token. The
// token comes from the Authorization header or the access_token cookie.
func Middleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("Authorization")
		if token == "" {
			token = c.Cookies("access_token")
			if token == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "missing authorization token",
					"code":  "AUTH_REQUIRED",
				})
			}
		} else {
			parts := strings.Split(token, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid authorization header format",
					"code":  "AUTH_INVALID",
				})
			}
			token = parts[1]
		}

		identity, err := jwtManager.Verify(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
				"code":  "AUTH_INVALID",
			})
		}

		c.Locals("userID", identity.UserID)
		c.Locals("email", identity.Email)
		c.Locals("nickname", identity.Nickname)

		return c.Next()
	}
}
