package services

import (
	"errors"
	"fmt"
)

var (
	ErrCallNotFound        = errors.New("call not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

// CapacityExceededError is the expected rejection of a join into a full call.
type CapacityExceededError struct {
	MaxAllowed int
}

func (v *CapacityExceededError) Error() string {
	return fmt.Sprintf("call is full, at most %d participants are allowed", v.MaxAllowed)
}
