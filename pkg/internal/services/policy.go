package services

import (
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type PolicyVerdict struct {
	Ended   bool                 `json:"ended"`
	Evicted []models.Participant `json:"evicted"`
	Limit   models.PlanLimit     `json:"limit"`
}

// EvaluateCallPolicy checks a live call against its owner's plan.
// Calls past the plan's duration ceiling are ended. On the free tier the
// newest seats above the capacity are released. Running it again on a call
// that already complies changes nothing.
func EvaluateCallPolicy(call models.Call) (PolicyVerdict, error) {
	limit := ResolvePlanLimit(call.AccountID)
	verdict := PolicyVerdict{Limit: limit, Ended: call.IsEnded()}
	if call.IsEnded() {
		return verdict, nil
	}

	if limit.HasDurationLimit() && call.StartedAt != nil {
		if time.Since(*call.StartedAt) >= limit.MaxDuration {
			if _, err := EndCall(call); err != nil {
				return verdict, err
			}
			verdict.Ended = true
			log.Info().Str("call", call.Name).Str("tier", limit.Tier).Msg("Call ended by its duration limit.")
			return verdict, nil
		}
	}

	if !limit.IsFree() {
		return verdict, nil
	}

	capacity := lo.FromPtrOr(call.MaxParticipants, limit.MaxParticipants)
	joined, err := ListJoinedParticipant(call.ID)
	if err != nil {
		return verdict, err
	}
	if len(joined) <= capacity {
		return verdict, nil
	}

	// Latest arrivals go first, seats held longer are kept
	for _, participant := range lo.Reverse(joined[capacity:]) {
		ForceLeaveParticipant(call, participant, "participant limit exceeded")
		verdict.Evicted = append(verdict.Evicted, participant)
	}

	return verdict, nil
}

// SweepCallPolicies evaluates every active call, used by the scheduler so
// calls whose clients went quiet still get their limits applied.
func SweepCallPolicies() {
	calls, err := ListActiveCall()
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when listing active calls...")
		return
	}

	var ended, evicted int
	for _, call := range calls {
		verdict, err := EvaluateCallPolicy(call)
		if err != nil {
			log.Error().Err(err).Str("call", call.Name).Msg("An error occurred when evaluating call policy...")
			continue
		}
		ended += lo.Ternary(verdict.Ended, 1, 0)
		evicted += len(verdict.Evicted)
	}

	log.Debug().Int("calls", len(calls)).Int("ended", ended).Int("evicted", evicted).Msg("Call policy sweep accomplished.")
}
