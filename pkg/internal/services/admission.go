package services

import (
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JoinRequest carries the session of whoever asks to join a call.
// User is nil for guests.
type JoinRequest struct {
	CallName string
	User     *models.Account
	Username string
	Audio    *bool
	Video    *bool
}

func (v JoinRequest) media() datatypes.JSONMap {
	if v.Audio == nil && v.Video == nil {
		return nil
	}
	var out datatypes.JSONMap
	models.FitStruct(struct {
		Audio *bool `json:"audio,omitempty"`
		Video *bool `json:"video,omitempty"`
	}{v.Audio, v.Video}, &out)
	return out
}

// JoinCall decides whether the requester gets a seat in the call.
//
// The call row is locked for the whole decision so that two joins racing for
// the last seat are serialized, the count and the insert happen under the
// same lock. Users that already hold a seat always get it back even when the
// call is full.
func JoinCall(req JoinRequest) (models.Participant, error) {
	var call models.Call
	var limit models.PlanLimit
	var participant models.Participant

	err := database.C.Transaction(func(tx *gorm.DB) error {
		var err error
		if call, err = getJoinableCall(tx, req.CallName, true); err != nil {
			return err
		}

		if limit, err = resolvePlanLimitInTx(tx, call.AccountID); err != nil {
			return err
		}
		capacity := lo.FromPtrOr(call.MaxParticipants, limit.MaxParticipants)

		fields := ParticipantFields{
			Name:  req.Username,
			Media: req.media(),
			Role:  models.ParticipantRoleGuest,
		}
		if req.User != nil {
			fields.AccountID = lo.ToPtr(req.User.ID)
			fields.Email = lo.ToPtr(req.User.Email)
			if len(fields.Name) == 0 {
				fields.Name = req.User.DisplayName()
			}
			if req.User.ID == call.AccountID {
				fields.Role = models.ParticipantRoleHost
			}

			existing, err := getExisting(tx, call.ID, req.User.ID)
			if err == nil {
				participant, err = rejoin(tx, existing, fields, time.Now())
				if err != nil {
					return err
				}
				return activateCall(tx, &call)
			} else if !errors.Is(err, ErrParticipantNotFound) {
				return err
			}
		}
		if len(fields.Name) == 0 {
			fields.Name = "Guest"
		}

		count, err := countJoined(tx, call.ID)
		if err != nil {
			return err
		}
		if count >= int64(capacity) {
			return &CapacityExceededError{MaxAllowed: capacity}
		}

		if participant, err = upsertJoin(tx, call.ID, fields); err != nil {
			return err
		}
		return activateCall(tx, &call)
	})
	if err != nil {
		var capacityErr *CapacityExceededError
		if errors.As(err, &capacityErr) {
			log.Info().
				Str("call", req.CallName).
				Int("max", capacityErr.MaxAllowed).
				Msg("Join rejected, call is at capacity.")
		}
		return participant, err
	}

	ScheduleParticipantDeadline(call, participant, limit)
	return participant, nil
}

func activateCall(tx *gorm.DB, call *models.Call) error {
	if call.Status != models.CallStatusCreated {
		return nil
	}
	now := time.Now()
	call.Status = models.CallStatusActive
	call.StartedAt = lo.ToPtr(now)
	return tx.Model(&models.Call{}).
		Where("id = ?", call.ID).
		Updates(map[string]any{"status": models.CallStatusActive, "started_at": now}).Error
}

// resolvePlanLimitInTx guards the plan lookup with a savepoint, a failed query
// would otherwise abort the surrounding transaction on postgres.
func resolvePlanLimitInTx(tx *gorm.DB, ownerId uint) (models.PlanLimit, error) {
	if err := tx.SavePoint("plan_limit").Error; err != nil {
		return models.PlanLimit{}, fmt.Errorf("plan savepoint: %w", err)
	}
	limit, err := lookupPlanLimit(tx, ownerId)
	if err != nil {
		log.Warn().Err(err).Uint("owner", ownerId).Msg("Unable to lookup owner plan, falling back to free tier...")
		if err := tx.RollbackTo("plan_limit").Error; err != nil {
			return limit, fmt.Errorf("rollback plan savepoint: %w", err)
		}
	}
	return limit, nil
}

// JoinCallWithPolicy admits the requester and applies the call policy right
// away. A seat the policy releases again is reported as a rejection, and a
// call the policy ended is reported as gone.
func JoinCallWithPolicy(req JoinRequest) (models.Participant, PolicyVerdict, error) {
	participant, err := JoinCall(req)
	if err != nil {
		return participant, PolicyVerdict{}, err
	}

	call, err := GetCallWithName(req.CallName)
	if err != nil {
		return participant, PolicyVerdict{}, err
	}
	verdict, err := EvaluateCallPolicy(call)
	if err != nil {
		log.Warn().Err(err).Str("call", call.Name).Msg("Unable to evaluate call policy after admission...")
		return participant, verdict, nil
	}

	if verdict.Ended {
		return participant, verdict, ErrCallNotFound
	}
	if lo.ContainsBy(verdict.Evicted, func(item models.Participant) bool {
		return item.ID == participant.ID
	}) {
		return participant, verdict, &CapacityExceededError{
			MaxAllowed: lo.FromPtrOr(call.MaxParticipants, verdict.Limit.MaxParticipants),
		}
	}

	return participant, verdict, nil
}
