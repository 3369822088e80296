package exts

import (
	"strings"

	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"git.solsynth.dev/hypernet/meet/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// AuthMiddleware resolves the bearer token into the "user" local when present.
// Requests without a token pass through as guests, a bad token is refused.
func AuthMiddleware(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) == 0 {
		return c.Next()
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authorization header must be a bearer token")
	}

	id, err := services.DecodeAccountToken(raw)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	account, err := services.GetAccount(id)
	if err != nil {
		log.Warn().Err(err).Uint("account", id).Msg("Token refers to an unknown account...")
		return fiber.NewError(fiber.StatusUnauthorized, "account not found")
	}

	c.Locals("user", account)
	return c.Next()
}

func EnsureAuthenticated(c *fiber.Ctx) error {
	if _, ok := c.Locals("user").(models.Account); !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "you must sign in first")
	}
	return nil
}

// GetUser returns the signed-in account, nil for guests.
func GetUser(c *fiber.Ctx) *models.Account {
	if user, ok := c.Locals("user").(models.Account); ok {
		return &user
	}
	return nil
}
