package api

import (
	"crypto/subtle"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/meet/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
)

// setSubscription is called by the billing system once a payment settles.
func setSubscription(c *fiber.Ctx) error {
	secret := viper.GetString("billing.secret")
	given := c.Get("X-Billing-Secret")
	if len(secret) == 0 || subtle.ConstantTimeCompare([]byte(secret), []byte(given)) != 1 {
		return fiber.NewError(fiber.StatusForbidden, "invalid billing secret")
	}

	accountId, err := c.ParamsInt("accountId", 0)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var data struct {
		Plan      string     `json:"plan" validate:"required,oneof=free starter professional enterprise"`
		ExpiredAt *time.Time `json:"expired_at"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	account, err := services.GetAccount(uint(accountId))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	subscription, err := services.SetSubscription(account.ID, data.Plan, data.ExpiredAt)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(subscription)
}
