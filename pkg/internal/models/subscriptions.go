package models

import "time"

type SubscriptionStatus = string

const (
	SubscriptionActive    = SubscriptionStatus("active")
	SubscriptionCancelled = SubscriptionStatus("cancelled")
)

// Subscription is recorded by the billing system, this service only reads it
// to decide how large a call may grow.
type Subscription struct {
	BaseModel

	Plan      PlanTier           `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	ExpiredAt *time.Time         `json:"expired_at"`
	AccountID uint               `json:"account_id" gorm:"index"`
}

func (v Subscription) IsEffective(at time.Time) bool {
	if v.Status != SubscriptionActive {
		return false
	}
	return v.ExpiredAt == nil || v.ExpiredAt.After(at)
}
