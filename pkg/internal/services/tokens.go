package services

import (
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/livekit/protocol/auth"
	"github.com/spf13/viper"
)

// EncodeCallToken issues the media credential for a seat the ledger holds as joined.
func EncodeCallToken(call models.Call, participant models.Participant) (string, error) {
	if call.IsEnded() {
		return "", ErrCallNotFound
	} else if participant.CallID != call.ID || participant.Status != models.ParticipantJoined {
		return "", fmt.Errorf("participant #%d is not in this call", participant.ID)
	}

	grant := &auth.VideoGrant{
		Room:      call.Name,
		RoomJoin:  true,
		RoomAdmin: participant.Role == models.ParticipantRoleHost,
	}

	metadata, _ := jsoniter.Marshal(map[string]any{
		"participant_id": participant.ID,
		"account_id":     participant.AccountID,
		"role":           participant.Role,
		"media":          participant.Media,
	})

	duration := time.Second * time.Duration(viper.GetInt("calling.token_duration"))
	tk := auth.NewAccessToken(viper.GetString("calling.api_key"), viper.GetString("calling.api_secret"))
	tk.AddGrant(grant).
		SetIdentity(participant.Identity()).
		SetName(participant.Name).
		SetMetadata(string(metadata)).
		SetValidFor(duration)

	return tk.ToJWT()
}
