package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/sorariku/liffcall/pkg/internal/http/exts"
	"github.com/sorariku/liffcall/pkg/internal/services"
)

// recordConferenceEvent ingests room webhooks from the conferencing provider.
// Webhook semantics apply: after the payload is accepted, downstream failures
// are logged, never returned.
func recordConferenceEvent(c *fiber.Ctx) error {
	var data struct {
		RoomID    string `json:"roomId" validate:"required"`
		Type      string `json:"type" validate:"required,oneof=room_start room_end join leave"`
		UserID    string `json:"userId"`
		UserName  string `json:"userName"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	occurredAt := time.Now()
	if data.Timestamp > 0 {
		occurredAt = time.UnixMilli(data.Timestamp)
	}

	if _, err := services.RecordConferenceEvent(data.RoomID, data.UserID, data.UserName, data.Type, occurredAt); err != nil {
		log.Warn().Err(err).Str("room", data.RoomID).Msg("An error occurred when recording a conference event.")
	}

	return c.JSON(fiber.Map{"success": true})
}

func exchangeConferenceToken(c *fiber.Ctx) error {
	var data struct {
		UserID   string `json:"userId" validate:"required"`
		UserName string `json:"userName"`
		RoomID   string `json:"roomId" validate:"required"`
		Admin    bool   `json:"admin"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	provider := viper.GetString("calling.provider")

	var token string
	var err error
	switch provider {
	case "livekit":
		token, err = services.EncodeRoomToken(data.UserID, data.UserName, data.RoomID, data.Admin)
	default:
		token, err = services.EncodeConferenceToken(
			viper.GetString("calling.service_id"),
			viper.GetString("calling.api_key"),
			data.UserID,
			data.RoomID,
			viper.GetString("calling.api_secret"),
		)
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"token":    token,
		"provider": provider,
		"endpoint": viper.GetString("calling.endpoint"),
	})
}
