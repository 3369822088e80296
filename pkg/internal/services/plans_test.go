package services

import (
	"testing"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/samber/lo"
)

func TestResolvePlanLimit_Tiers(t *testing.T) {
	setupTestEnv(t)

	tests := []struct {
		tier     models.PlanTier
		expected int
	}{
		{models.PlanFree, 4},
		{models.PlanStarter, 10},
		{models.PlanProfessional, 50},
		{models.PlanEnterprise, 250},
	}

	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			account := createTestAccount(t, "user"+tt.tier, tt.tier)
			limit := ResolvePlanLimit(account.ID)
			if limit.Tier != tt.tier {
				t.Errorf("Tier = %q, expected %q", limit.Tier, tt.tier)
			}
			if limit.MaxParticipants != tt.expected {
				t.Errorf("MaxParticipants = %d, expected %d", limit.MaxParticipants, tt.expected)
			}
		})
	}
}

func TestResolvePlanLimit_FallsBackToFree(t *testing.T) {
	setupTestEnv(t)

	if limit := ResolvePlanLimit(999); limit.Tier != models.PlanFree {
		t.Errorf("unknown owner Tier = %q, expected %q", limit.Tier, models.PlanFree)
	}

	expired := createTestAccount(t, "expired", models.PlanFree)
	if _, err := SetSubscription(expired.ID, models.PlanStarter, lo.ToPtr(time.Now().Add(-time.Hour))); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	if limit := ResolvePlanLimit(expired.ID); limit.Tier != models.PlanFree {
		t.Errorf("expired Tier = %q, expected %q", limit.Tier, models.PlanFree)
	}

	unknown := createTestAccount(t, "gold", models.PlanFree)
	if _, err := SetSubscription(unknown.ID, "gold", nil); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	if limit := ResolvePlanLimit(unknown.ID); limit.Tier != models.PlanFree {
		t.Errorf("unknown tier Tier = %q, expected %q", limit.Tier, models.PlanFree)
	}
}

func TestResolvePlanLimit_StorageFailure(t *testing.T) {
	setupTestEnv(t)
	account := createTestAccount(t, "starter", models.PlanStarter)

	sqlDB, _ := database.C.DB()
	_ = sqlDB.Close()

	if limit := ResolvePlanLimit(account.ID); limit.Tier != models.PlanFree {
		t.Errorf("Tier = %q, expected %q", limit.Tier, models.PlanFree)
	}
}

func TestSetSubscription_ReplacesPrevious(t *testing.T) {
	setupTestEnv(t)
	account := createTestAccount(t, "upgrader", models.PlanStarter)

	if _, err := SetSubscription(account.ID, models.PlanEnterprise, nil); err != nil {
		t.Fatalf("set subscription: %v", err)
	}

	var active int64
	database.C.Model(&models.Subscription{}).
		Where("account_id = ? AND status = ?", account.ID, models.SubscriptionActive).
		Count(&active)
	if active != 1 {
		t.Errorf("active subscriptions = %d, expected 1", active)
	}
	if tier, _ := GetCurrentPlan(account.ID); tier != models.PlanEnterprise {
		t.Errorf("tier = %q, expected %q", tier, models.PlanEnterprise)
	}
}

func TestResolveCallCapacity(t *testing.T) {
	setupTestEnv(t)
	owner := createTestAccount(t, "owner", models.PlanProfessional)

	if capacity := ResolveCallCapacity(createTestCall(t, owner, lo.ToPtr(7))); capacity != 7 {
		t.Errorf("override capacity = %d, expected 7", capacity)
	}
	if capacity := ResolveCallCapacity(createTestCall(t, owner, nil)); capacity != 50 {
		t.Errorf("plan capacity = %d, expected 50", capacity)
	}
}
