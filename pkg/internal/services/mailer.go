package services

import (
	"fmt"
	"strings"

	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/wneessen/go-mail"
)

type CallInvite struct {
	Recipient         string
	RecipientUsername string
	Inviter           models.Account
}

// DeliverMail hands a composed message to the SMTP server, swapped in tests.
var DeliverMail = func(msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if port := viper.GetInt("mailer.port"); port > 0 {
		opts = append(opts, mail.WithPort(port))
	}
	if username := viper.GetString("mailer.username"); len(username) > 0 {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(viper.GetString("mailer.password")),
		)
	}

	client, err := mail.NewClient(viper.GetString("mailer.host"), opts...)
	if err != nil {
		return err
	}
	return client.DialAndSend(msg)
}

func GetInviteLink(call models.Call) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(viper.GetString("mailer.invite_base_url"), "/"), call.Name)
}

func SendCallInvite(call models.Call, invite CallInvite) error {
	if len(viper.GetString("mailer.host")) == 0 {
		return fmt.Errorf("mailer is not configured")
	}

	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.From(viper.GetString("mailer.from")); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(invite.Recipient); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject("Invitation to join a call")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Hi %s,\r\n\r\nYou have been invited to join a call by %s (%s).\r\n\r\nJoin here: %s\r\n",
		invite.RecipientUsername,
		invite.Inviter.DisplayName(),
		invite.Inviter.Email,
		GetInviteLink(call),
	))

	if err := DeliverMail(msg); err != nil {
		return fmt.Errorf("send invite: %w", err)
	}

	log.Info().Str("call", call.Name).Str("recipient", invite.Recipient).Msg("Call invite has been sent.")
	return nil
}
