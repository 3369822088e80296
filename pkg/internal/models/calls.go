package models

import (
	"time"

	"github.com/livekit/protocol/livekit"
)

type CallStatus = string

const (
	CallStatusCreated = CallStatus("created")
	CallStatusActive  = CallStatus("active")
	CallStatusEnded   = CallStatus("ended")
)

type Call struct {
	BaseModel

	Name            string     `json:"name" gorm:"uniqueIndex"`
	Status          CallStatus `json:"status" gorm:"index"`
	MaxParticipants *int       `json:"max_participants"`
	StartedAt       *time.Time `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`

	AccountID    uint          `json:"account_id"`
	Account      Account       `json:"account"`
	Participants []Participant `json:"participants,omitempty"`

	Peers []*livekit.ParticipantInfo `json:"peers,omitempty" gorm:"-"`
}

func (v Call) IsEnded() bool {
	return v.Status == CallStatusEnded
}
