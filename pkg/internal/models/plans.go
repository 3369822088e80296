package models

import (
	"time"
)

type PlanTier = string

const (
	PlanFree         = PlanTier("free")
	PlanStarter      = PlanTier("starter")
	PlanProfessional = PlanTier("professional")
	PlanEnterprise   = PlanTier("enterprise")
)

// PlanLimit is the ceiling a call owner's tier puts on their calls.
// Zero MaxDuration means the calls are not time limited.
type PlanLimit struct {
	Tier            PlanTier      `json:"tier"`
	MaxParticipants int           `json:"max_participants"`
	MaxDuration     time.Duration `json:"max_duration"`
}

func (v PlanLimit) IsFree() bool {
	return v.Tier == PlanFree
}

func (v PlanLimit) HasDurationLimit() bool {
	return v.MaxDuration > 0
}

var planLimits = map[PlanTier]PlanLimit{
	PlanFree:         {Tier: PlanFree, MaxParticipants: 4, MaxDuration: 15 * time.Minute},
	PlanStarter:      {Tier: PlanStarter, MaxParticipants: 10},
	PlanProfessional: {Tier: PlanProfessional, MaxParticipants: 50},
	PlanEnterprise:   {Tier: PlanEnterprise, MaxParticipants: 250},
}

// GetPlanLimit looks up the static limit table, unknown tiers are not found.
func GetPlanLimit(tier PlanTier) (PlanLimit, bool) {
	limit, ok := planLimits[tier]
	return limit, ok
}

func FreePlanLimit() PlanLimit {
	return planLimits[PlanFree]
}
