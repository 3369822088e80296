package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type ParticipantRole = string

const (
	ParticipantRoleHost  = ParticipantRole("host")
	ParticipantRoleGuest = ParticipantRole("guest")
)

type ParticipantStatus = string

const (
	ParticipantJoined = ParticipantStatus("joined")
	ParticipantLeft   = ParticipantStatus("left")
)

// Participant is one seat in a call ledger.
// Guests have no account, the unique index only binds signed-in users since
// NULL account ids never collide.
type Participant struct {
	BaseModel

	Name     string            `json:"name"`
	Email    *string           `json:"email"`
	Role     ParticipantRole   `json:"role"`
	Status   ParticipantStatus `json:"status" gorm:"index"`
	JoinedAt time.Time         `json:"joined_at"`
	LeftAt   *time.Time        `json:"left_at"`
	Duration int64             `json:"duration"`
	Media    datatypes.JSONMap `json:"media"`

	// Guests prove ownership of their seat with the secret handed out on join,
	// only its digest is stored.
	SeatSecretHash string `json:"-"`
	SeatSecret     string `json:"seat_secret,omitempty" gorm:"-"`

	CallID    uint  `json:"call_id" gorm:"uniqueIndex:idx_participant_seat"`
	Call      *Call `json:"call,omitempty"`
	AccountID *uint `json:"account_id" gorm:"uniqueIndex:idx_participant_seat"`
}

func (v Participant) IsGuest() bool {
	return v.AccountID == nil
}

// Identity is the name presented to the video provider.
func (v Participant) Identity() string {
	if v.AccountID != nil {
		return fmt.Sprintf("user-%d", *v.AccountID)
	}
	return fmt.Sprintf("guest-%d", v.ID)
}

func HashSeatSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySeatSecret only ever succeeds for guest seats.
func (v Participant) VerifySeatSecret(secret string) bool {
	if !v.IsGuest() || len(secret) == 0 || len(v.SeatSecretHash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashSeatSecret(secret)), []byte(v.SeatSecretHash)) == 1
}
