package services

import (
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ParticipantIdentity points at one seat of the ledger on behalf of its owner.
// Signed-in users are found by account, guests by the participant id and the
// seat secret handed out when they joined.
type ParticipantIdentity struct {
	AccountID     *uint
	ParticipantID uint
	SeatSecret    string
}

type ParticipantFields struct {
	AccountID *uint
	Name      string
	Email     *string
	Role      models.ParticipantRole
	Media     datatypes.JSONMap
}

func CountJoinedParticipants(callId uint) (int64, error) {
	return countJoined(database.C, callId)
}

func countJoined(tx *gorm.DB, callId uint) (int64, error) {
	var count int64
	if err := tx.
		Model(&models.Participant{}).
		Where("call_id = ? AND status = ?", callId, models.ParticipantJoined).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}

func ListParticipant(callId uint) ([]models.Participant, error) {
	var participants []models.Participant
	if err := database.C.
		Where("call_id = ?", callId).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return participants, err
	}
	return participants, nil
}

func ListJoinedParticipant(callId uint) ([]models.Participant, error) {
	return listJoinedParticipant(database.C, callId)
}

func listJoinedParticipant(tx *gorm.DB, callId uint) ([]models.Participant, error) {
	var participants []models.Participant
	if err := tx.
		Where("call_id = ? AND status = ?", callId, models.ParticipantJoined).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error; err != nil {
		return participants, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

// GetExistingParticipant only looks up signed-in users, guests never match.
func GetExistingParticipant(callId, accountId uint) (models.Participant, error) {
	return getExisting(database.C, callId, accountId)
}

func getExisting(tx *gorm.DB, callId, accountId uint) (models.Participant, error) {
	var participant models.Participant
	if err := tx.
		Where("call_id = ? AND account_id = ?", callId, accountId).
		First(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return participant, ErrParticipantNotFound
		}
		return participant, fmt.Errorf("lookup participant: %w", err)
	}
	return participant, nil
}

func GetParticipant(callId uint, identity ParticipantIdentity) (models.Participant, error) {
	return getParticipant(database.C, callId, identity)
}

func getParticipant(tx *gorm.DB, callId uint, identity ParticipantIdentity) (models.Participant, error) {
	if identity.AccountID != nil {
		return getExisting(tx, callId, *identity.AccountID)
	}

	var participant models.Participant
	if err := tx.
		Where("call_id = ? AND id = ? AND account_id IS NULL", callId, identity.ParticipantID).
		First(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return participant, ErrParticipantNotFound
		}
		return participant, fmt.Errorf("lookup participant: %w", err)
	}
	if !participant.VerifySeatSecret(identity.SeatSecret) {
		return models.Participant{}, ErrParticipantNotFound
	}
	return participant, nil
}

// GetParticipantWithID looks a seat up without any ownership check, only for
// the host and the enforcement paths.
func GetParticipantWithID(callId, participantId uint) (models.Participant, error) {
	return getParticipantWithID(database.C, callId, participantId)
}

func getParticipantWithID(tx *gorm.DB, callId, participantId uint) (models.Participant, error) {
	var participant models.Participant
	if err := tx.
		Where("call_id = ? AND id = ?", callId, participantId).
		First(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return participant, ErrParticipantNotFound
		}
		return participant, fmt.Errorf("lookup participant: %w", err)
	}
	return participant, nil
}

// UpsertParticipantJoin puts a participant into the joined state.
// An existing seat of the same user is reused, everything else inserts a new row.
func UpsertParticipantJoin(callId uint, fields ParticipantFields) (models.Participant, error) {
	var participant models.Participant
	err := database.C.Transaction(func(tx *gorm.DB) error {
		var err error
		participant, err = upsertJoin(tx, callId, fields)
		return err
	})
	return participant, err
}

func upsertJoin(tx *gorm.DB, callId uint, fields ParticipantFields) (models.Participant, error) {
	now := time.Now()

	if fields.AccountID != nil {
		existing, err := getExisting(tx, callId, *fields.AccountID)
		if err == nil {
			return rejoin(tx, existing, fields, now)
		} else if !errors.Is(err, ErrParticipantNotFound) {
			return existing, err
		}
	}

	var secret string
	if fields.AccountID == nil {
		secret = uuid.NewString()
	}

	participant := models.Participant{
		Name:      fields.Name,
		Email:     fields.Email,
		Role:      lo.Ternary(len(fields.Role) > 0, fields.Role, models.ParticipantRoleGuest),
		Status:    models.ParticipantJoined,
		JoinedAt:  now,
		Media:     fields.Media,
		CallID:    callId,
		AccountID: fields.AccountID,
	}
	if len(secret) > 0 {
		participant.SeatSecretHash = models.HashSeatSecret(secret)
	}
	if err := tx.Create(&participant).Error; err != nil {
		return participant, fmt.Errorf("create participant: %w", err)
	}
	participant.SeatSecret = secret
	return participant, nil
}

func rejoin(tx *gorm.DB, existing models.Participant, fields ParticipantFields, at time.Time) (models.Participant, error) {
	changes := map[string]any{
		"status":    models.ParticipantJoined,
		"joined_at": at,
		"left_at":   nil,
	}
	// A seat that never left keeps the time it already spent in the call
	if existing.Status == models.ParticipantJoined {
		changes["duration"] = existing.Duration + secondsBetween(existing.JoinedAt, at)
	}
	if len(fields.Name) > 0 {
		changes["name"] = fields.Name
	}
	if fields.Media != nil {
		changes["media"] = fields.Media
	}

	if err := tx.Model(&existing).Updates(changes).Error; err != nil {
		return existing, fmt.Errorf("update participant: %w", err)
	}
	if err := tx.First(&existing, existing.ID).Error; err != nil {
		return existing, fmt.Errorf("reload participant: %w", err)
	}
	return existing, nil
}

// MarkParticipantLeft releases the seat of the identity owner and accrues the
// time spent in the call. Leaving twice is a no-op.
func MarkParticipantLeft(callId uint, identity ParticipantIdentity) (models.Participant, error) {
	return leaveParticipant(func(tx *gorm.DB) (models.Participant, error) {
		return getParticipant(tx, callId, identity)
	})
}

// ReleaseParticipant is MarkParticipantLeft for the enforcement paths, the
// seat is addressed by id alone.
func ReleaseParticipant(callId, participantId uint) (models.Participant, error) {
	return leaveParticipant(func(tx *gorm.DB) (models.Participant, error) {
		return getParticipantWithID(tx, callId, participantId)
	})
}

func leaveParticipant(lookup func(tx *gorm.DB) (models.Participant, error)) (models.Participant, error) {
	var participant models.Participant
	err := database.C.Transaction(func(tx *gorm.DB) error {
		var err error
		participant, err = lookup(tx)
		if err != nil {
			return err
		}
		if participant.Status == models.ParticipantLeft {
			return nil
		}
		if err = markLeft(tx, participant, time.Now()); err != nil {
			return err
		}
		return tx.First(&participant, participant.ID).Error
	})
	if err != nil {
		return participant, err
	}

	CancelParticipantDeadline(participant.ID)
	return participant, nil
}

func markLeft(tx *gorm.DB, participant models.Participant, at time.Time) error {
	if err := tx.Model(&models.Participant{}).
		Where("id = ? AND status = ?", participant.ID, models.ParticipantJoined).
		Updates(map[string]any{
			"status":   models.ParticipantLeft,
			"left_at":  at,
			"duration": gorm.Expr("duration + ?", secondsBetween(participant.JoinedAt, at)),
		}).Error; err != nil {
		return fmt.Errorf("mark participant left: %w", err)
	}
	return nil
}

func secondsBetween(from, to time.Time) int64 {
	return max(int64(to.Sub(from)/time.Second), 0)
}
