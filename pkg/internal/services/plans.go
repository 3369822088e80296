package services

import (
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// GetCurrentPlan returns the tier of the newest effective subscription of the account.
func GetCurrentPlan(accountId uint) (models.PlanTier, error) {
	return getCurrentPlan(database.C, accountId)
}

func getCurrentPlan(tx *gorm.DB, accountId uint) (models.PlanTier, error) {
	var subscriptions []models.Subscription
	if err := tx.
		Where(&models.Subscription{AccountID: accountId, Status: models.SubscriptionActive}).
		Order("created_at DESC, id DESC").
		Find(&subscriptions).Error; err != nil {
		return models.PlanFree, err
	}

	now := time.Now()
	for _, item := range subscriptions {
		if item.IsEffective(now) {
			return item.Plan, nil
		}
	}
	return models.PlanFree, nil
}

// ResolvePlanLimit maps the owner's tier to its limits.
// Lookup failures never fail the caller, they fall back to the free tier.
func ResolvePlanLimit(ownerId uint) models.PlanLimit {
	return resolvePlanLimit(database.C, ownerId)
}

func resolvePlanLimit(tx *gorm.DB, ownerId uint) models.PlanLimit {
	limit, err := lookupPlanLimit(tx, ownerId)
	if err != nil {
		log.Warn().Err(err).Uint("owner", ownerId).Msg("Unable to lookup owner plan, falling back to free tier...")
		return models.FreePlanLimit()
	}
	return limit
}

// lookupPlanLimit only fails when the subscription could not be read,
// unknown tiers already fall back to free.
func lookupPlanLimit(tx *gorm.DB, ownerId uint) (models.PlanLimit, error) {
	tier, err := getCurrentPlan(tx, ownerId)
	if err != nil {
		return models.FreePlanLimit(), err
	}
	limit, ok := models.GetPlanLimit(tier)
	if !ok {
		log.Warn().Str("tier", tier).Uint("owner", ownerId).Msg("Unknown plan tier, falling back to free tier...")
		return models.FreePlanLimit(), nil
	}
	return limit, nil
}

// ResolveCallCapacity prefers the capacity recorded on the call, calls created
// before it was recorded use the owner's plan.
func ResolveCallCapacity(call models.Call) int {
	return resolveCallCapacity(database.C, call)
}

func resolveCallCapacity(tx *gorm.DB, call models.Call) int {
	if call.MaxParticipants != nil {
		return *call.MaxParticipants
	}
	return resolvePlanLimit(tx, call.AccountID).MaxParticipants
}

// SetSubscription records the tier the billing system granted to an account.
// Previous active subscriptions are cancelled so only one stays effective.
func SetSubscription(accountId uint, tier models.PlanTier, expiredAt *time.Time) (models.Subscription, error) {
	subscription := models.Subscription{
		Plan:      tier,
		Status:    models.SubscriptionActive,
		ExpiredAt: expiredAt,
		AccountID: accountId,
	}

	err := database.C.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Subscription{}).
			Where("account_id = ? AND status = ?", accountId, models.SubscriptionActive).
			Update("status", models.SubscriptionCancelled).Error; err != nil {
			return err
		}
		return tx.Create(&subscription).Error
	})

	return subscription, err
}
