package api

import (
	"errors"
	"fmt"

	"git.solsynth.dev/hypernet/meet/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"git.solsynth.dev/hypernet/meet/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

func listCall(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := c.Locals("user").(models.Account)
	take := c.QueryInt("take", 10)
	offset := c.QueryInt("offset", 0)

	count, err := services.CountCall(user)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	calls, err := services.ListCall(user, take, offset)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"count": count,
		"data":  calls,
	})
}

func getCall(c *fiber.Ctx) error {
	call, err := services.GetCallWithName(c.Params("call"))
	if err != nil {
		return handleAdmissionError(c, err)
	}

	if call.Participants, err = services.ListParticipant(call.ID); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if !call.IsEnded() {
		if peers, err := services.GetCallPeers(call); err == nil {
			call.Peers = peers
		}
	}

	return c.JSON(call)
}

func getCallPlan(c *fiber.Ctx) error {
	call, err := services.GetJoinableCall(c.Params("call"))
	if err != nil {
		return handleAdmissionError(c, err)
	}

	limit := services.ResolvePlanLimit(call.AccountID)
	return c.JSON(fiber.Map{
		"tier":                 limit.Tier,
		"max_participants":     services.ResolveCallCapacity(call),
		"max_duration_minutes": int(limit.MaxDuration.Minutes()),
	})
}

func createCall(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := c.Locals("user").(models.Account)

	var data struct {
		MaxParticipants *int `json:"max_participants" validate:"omitempty,min=1"`
	}
	if len(c.Body()) > 0 {
		if err := exts.BindAndValidate(c, &data); err != nil {
			return err
		}
	}

	call, err := services.NewCall(user, data.MaxParticipants)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(call)
}

func endCall(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := c.Locals("user").(models.Account)

	call, err := services.GetJoinableCall(c.Params("call"))
	if err != nil {
		return handleAdmissionError(c, err)
	} else if call.AccountID != user.ID {
		return fiber.NewError(fiber.StatusForbidden, "only call host can end this call")
	}

	if call, err := services.EndCall(call); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	} else {
		return c.JSON(call)
	}
}

func joinCall(c *fiber.Ctx) error {
	var data struct {
		CallName string `json:"callName" validate:"required,uuid"`
		Username string `json:"username" validate:"omitempty,max=64"`
		Audio    *bool  `json:"audio"`
		Video    *bool  `json:"video"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	participant, _, err := services.JoinCallWithPolicy(services.JoinRequest{
		CallName: data.CallName,
		User:     exts.GetUser(c),
		Username: data.Username,
		Audio:    data.Audio,
		Video:    data.Video,
	})
	if err != nil {
		return handleAdmissionError(c, err)
	}

	return c.JSON(participant)
}

func leaveCall(c *fiber.Ctx) error {
	var data struct {
		CallName      string `json:"callName" validate:"required,uuid"`
		ParticipantID uint   `json:"participantId"`
		SeatSecret    string `json:"seatSecret"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	call, err := services.GetCallWithName(data.CallName)
	if err != nil {
		return handleAdmissionError(c, err)
	}
	identity, err := getParticipantIdentity(c, data.ParticipantID, data.SeatSecret)
	if err != nil {
		return err
	}

	participant, err := services.MarkParticipantLeft(call.ID, identity)
	if err != nil {
		return handleAdmissionError(c, err)
	}

	return c.JSON(participant)
}

func heartbeatCall(c *fiber.Ctx) error {
	var data struct {
		ParticipantID uint   `json:"participantId"`
		SeatSecret    string `json:"seatSecret"`
	}
	if len(c.Body()) > 0 {
		if err := exts.BindAndValidate(c, &data); err != nil {
			return err
		}
	}

	call, err := services.GetJoinableCall(c.Params("call"))
	if err != nil {
		return handleAdmissionError(c, err)
	}
	identity, err := getParticipantIdentity(c, data.ParticipantID, data.SeatSecret)
	if err != nil {
		return err
	}

	verdict, err := services.EvaluateCallPolicy(call)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	participant, err := services.GetParticipant(call.ID, identity)
	if err != nil {
		return handleAdmissionError(c, err)
	}

	return c.JSON(fiber.Map{
		"policy":      verdict,
		"participant": participant,
	})
}

func exchangeCallToken(c *fiber.Ctx) error {
	var data struct {
		ParticipantID uint   `json:"participantId"`
		SeatSecret    string `json:"seatSecret"`
	}
	if len(c.Body()) > 0 {
		if err := exts.BindAndValidate(c, &data); err != nil {
			return err
		}
	}

	call, err := services.GetJoinableCall(c.Params("call"))
	if err != nil {
		return handleAdmissionError(c, err)
	}
	identity, err := getParticipantIdentity(c, data.ParticipantID, data.SeatSecret)
	if err != nil {
		return err
	}
	participant, err := services.GetParticipant(call.ID, identity)
	if err != nil {
		return handleAdmissionError(c, err)
	}

	tk, err := services.EncodeCallToken(call, participant)
	if err != nil {
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	} else {
		return c.JSON(fiber.Map{
			"token":    tk,
			"endpoint": viper.GetString("calling.endpoint"),
		})
	}
}

func kickParticipantInCall(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := c.Locals("user").(models.Account)
	participantId, _ := c.ParamsInt("participantId", 0)

	call, err := services.GetJoinableCall(c.Params("call"))
	if err != nil {
		return handleAdmissionError(c, err)
	} else if call.AccountID != user.ID {
		return fiber.NewError(fiber.StatusForbidden, "only call host can kick participant in this call")
	}

	participant, err := services.GetParticipantWithID(call.ID, uint(participantId))
	if err != nil {
		return handleAdmissionError(c, err)
	}

	services.ForceLeaveParticipant(call, participant, "kicked by host")
	return c.SendStatus(fiber.StatusOK)
}

func inviteCall(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := c.Locals("user").(models.Account)

	var data struct {
		Recipient         string `json:"recipient" validate:"required,email"`
		RecipientUsername string `json:"recipientUsername" validate:"required"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	call, err := services.GetJoinableCall(c.Params("call"))
	if err != nil {
		return handleAdmissionError(c, err)
	}

	if err := services.SendCallInvite(call, services.CallInvite{
		Recipient:         data.Recipient,
		RecipientUsername: data.RecipientUsername,
		Inviter:           user,
	}); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"link":    services.GetInviteLink(call),
	})
}

// getParticipantIdentity prefers the signed-in account, guests must present
// their seat id together with the seat secret they got on join.
func getParticipantIdentity(c *fiber.Ctx, participantId uint, seatSecret string) (services.ParticipantIdentity, error) {
	if user := exts.GetUser(c); user != nil {
		return services.ParticipantIdentity{AccountID: lo.ToPtr(user.ID)}, nil
	} else if participantId == 0 || len(seatSecret) == 0 {
		return services.ParticipantIdentity{}, fiber.NewError(fiber.StatusBadRequest, "guests must provide their participant id and seat secret")
	}
	return services.ParticipantIdentity{ParticipantID: participantId, SeatSecret: seatSecret}, nil
}

func handleAdmissionError(c *fiber.Ctx, err error) error {
	var capacityErr *services.CapacityExceededError
	switch {
	case errors.As(err, &capacityErr):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "PLAN_LIMIT_EXCEEDED",
			"message": fmt.Sprintf(
				"This meeting is full. The host's current plan allows only %d participants. Please upgrade the plan to add more.",
				capacityErr.MaxAllowed,
			),
			"maxAllowed": capacityErr.MaxAllowed,
		})
	case errors.Is(err, services.ErrCallNotFound), errors.Is(err, services.ErrParticipantNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("An error occurred when handling call request...")
		return fiber.NewError(fiber.StatusInternalServerError, "something went wrong, please try again")
	}
}
