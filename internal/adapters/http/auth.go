package http

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
)

// NewBearerAuth guards the webhook routes with a static bearer-token list
// ("Authorization: Bearer <token>"). Callers are trusted entirely on the
// token; there is no per-project authorization.
func NewBearerAuth(tokens []string) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			for _, tok := range tokens {
				if subtle.ConstantTimeCompare([]byte(tok), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or missing bearer token",
			})
		},
	})
}
