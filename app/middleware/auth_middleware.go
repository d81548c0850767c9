package middleware

import (
	"crypto/subtle"

	"github.com/amirphl/peyk/app/dto"
	"github.com/gofiber/fiber/v3"
)

// APIKey returns a middleware that guards the API with a static key carried
// in the X-API-Key header. An empty configured key disables the guard.
func APIKey(key string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}

		provided := c.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid or missing API key",
				Error: dto.ErrorDetail{
					Code: "UNAUTHORIZED",
				},
			})
		}

		return c.Next()
	}
}
