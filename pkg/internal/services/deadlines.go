package services

import (
	"sync"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/rs/zerolog/log"
)

// Participant ID -> pending deadline
var participantDeadlines = make(map[uint]*time.Timer)
var participantDeadlinesLock sync.Mutex

// ScheduleParticipantDeadline force-leaves the participant once the plan's
// duration ceiling counted from their join time has passed.
// A deadline scheduled earlier for the same participant is replaced.
func ScheduleParticipantDeadline(call models.Call, participant models.Participant, limit models.PlanLimit) {
	if !limit.HasDurationLimit() {
		CancelParticipantDeadline(participant.ID)
		return
	}

	participantDeadlinesLock.Lock()
	defer participantDeadlinesLock.Unlock()

	if prev, ok := participantDeadlines[participant.ID]; ok {
		prev.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(time.Until(participant.JoinedAt.Add(limit.MaxDuration)), func() {
		participantDeadlinesLock.Lock()
		if participantDeadlines[participant.ID] != timer {
			// Replaced by a later join
			participantDeadlinesLock.Unlock()
			return
		}
		delete(participantDeadlines, participant.ID)
		participantDeadlinesLock.Unlock()

		ForceLeaveParticipant(call, participant, "duration limit reached")
	})
	participantDeadlines[participant.ID] = timer
}

// CancelParticipantDeadline stops a pending deadline, returns whether there was one.
func CancelParticipantDeadline(participantId uint) bool {
	participantDeadlinesLock.Lock()
	defer participantDeadlinesLock.Unlock()

	timer, ok := participantDeadlines[participantId]
	if !ok {
		return false
	}
	delete(participantDeadlines, participantId)
	return timer.Stop()
}

func HasParticipantDeadline(participantId uint) bool {
	participantDeadlinesLock.Lock()
	defer participantDeadlinesLock.Unlock()

	_, ok := participantDeadlines[participantId]
	return ok
}

// ForceLeaveParticipant is the enforcement path shared by deadlines and the
// call policy. Seats that already left are untouched.
func ForceLeaveParticipant(call models.Call, participant models.Participant, reason string) {
	out, err := ReleaseParticipant(call.ID, participant.ID)
	if err != nil {
		log.Error().Err(err).
			Str("call", call.Name).
			Uint("participant", participant.ID).
			Msg("Unable to force participant leaving the call...")
		return
	}

	if err := KickParticipantInCall(call, out); err != nil {
		log.Warn().Err(err).
			Str("call", call.Name).
			Uint("participant", participant.ID).
			Msg("Unable to remove participant at livekit side")
	}

	log.Info().
		Str("call", call.Name).
		Uint("participant", participant.ID).
		Str("reason", reason).
		Msg("Participant has been forced to leave the call.")
}
