package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListCall pages through the calls of the owner, a non-positive take lists all.
func ListCall(owner models.Account, take, offset int) ([]models.Call, error) {
	tx := database.C.Where(models.Call{AccountID: owner.ID})
	if take > 0 {
		tx = tx.Limit(take)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}

	var calls []models.Call
	if err := tx.
		Order("created_at DESC, id DESC").
		Find(&calls).Error; err != nil {
		return calls, err
	} else {
		return calls, nil
	}
}

func CountCall(owner models.Account) (int64, error) {
	var count int64
	if err := database.C.
		Model(&models.Call{}).
		Where(models.Call{AccountID: owner.ID}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GetCallWithName returns the call regardless of its status.
func GetCallWithName(name string) (models.Call, error) {
	var call models.Call
	if err := database.C.
		Where(models.Call{Name: name}).
		Preload("Account").
		First(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return call, ErrCallNotFound
		}
		return call, err
	}
	return call, nil
}

// GetJoinableCall returns the call only while it has not ended.
func GetJoinableCall(name string) (models.Call, error) {
	return getJoinableCall(database.C, name, false)
}

func getJoinableCall(tx *gorm.DB, name string, lock bool) (models.Call, error) {
	var call models.Call
	if lock {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := tx.
		Where("name = ? AND status <> ?", name, models.CallStatusEnded).
		First(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return call, ErrCallNotFound
		}
		return call, fmt.Errorf("lookup call: %w", err)
	}
	return call, nil
}

func ListActiveCall() ([]models.Call, error) {
	var calls []models.Call
	if err := database.C.
		Where("status = ?", models.CallStatusActive).
		Find(&calls).Error; err != nil {
		return calls, err
	}
	return calls, nil
}

func GetCallPeers(call models.Call) ([]*livekit.ParticipantInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := Lk.ListParticipants(ctx, &livekit.ListParticipantsRequest{
		Room: call.Name,
	})
	if err != nil {
		return nil, err
	}
	return res.Participants, nil
}

// NewCall records the call with the capacity of the owner's plan at creation
// time. A smaller requested capacity is honored, a larger one is clamped.
func NewCall(owner models.Account, requested *int) (models.Call, error) {
	limit := ResolvePlanLimit(owner.ID)
	capacity := limit.MaxParticipants
	if requested != nil && *requested > 0 && *requested < capacity {
		capacity = *requested
	}

	call := models.Call{
		Name:            uuid.NewString(),
		Status:          models.CallStatusCreated,
		MaxParticipants: lo.ToPtr(capacity),
		AccountID:       owner.ID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Lk.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            call.Name,
		EmptyTimeout:    viper.GetUint32("calling.empty_timeout_duration"),
		MaxParticipants: uint32(capacity),
	})
	if err != nil {
		return call, fmt.Errorf("remote livekit error: %v", err)
	}

	if err := database.C.Save(&call).Error; err != nil {
		return call, err
	}
	call.Account = owner

	log.Info().
		Str("call", call.Name).
		Uint("owner", owner.ID).
		Str("tier", limit.Tier).
		Int("capacity", capacity).
		Msg("A new call has been created.")

	return call, nil
}

// EndCall closes the call and releases every seat still held in it.
// Ending an ended call does nothing.
func EndCall(call models.Call) (models.Call, error) {
	if call.IsEnded() {
		return call, nil
	}

	var released []models.Participant
	err := database.C.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Call{}).
			Where("id = ? AND status <> ?", call.ID, models.CallStatusEnded).
			Updates(map[string]any{"status": models.CallStatusEnded, "ended_at": now})
		if res.Error != nil {
			return res.Error
		}
		call.Status = models.CallStatusEnded
		call.EndedAt = lo.ToPtr(now)

		var err error
		released, err = listJoinedParticipant(tx, call.ID)
		if err != nil {
			return err
		}
		for _, participant := range released {
			if err := markLeft(tx, participant, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return call, err
	}

	for _, participant := range released {
		CancelParticipantDeadline(participant.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Lk.DeleteRoom(ctx, &livekit.DeleteRoomRequest{
		Room: call.Name,
	}); err != nil {
		log.Error().Err(err).Str("call", call.Name).Msg("Unable to delete room at livekit side")
	}

	return call, nil
}

// KickParticipantInCall removes the participant's media session, the ledger is
// updated separately.
func KickParticipantInCall(call models.Call, participant models.Participant) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Lk.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     call.Name,
		Identity: participant.Identity(),
	})
	return err
}
