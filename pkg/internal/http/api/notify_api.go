package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/sorariku/liffcall/pkg/internal/http/exts"
	"github.com/sorariku/liffcall/pkg/internal/services"
)

func notifyCall(c *fiber.Ctx) error {
	var data struct {
		ToUserID string         `json:"toUserId" validate:"required"`
		Sid      string         `json:"sid"`
		Payload  map[string]any `json:"payload"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	payload := data.Payload
	if payload == nil {
		payload = map[string]any{"type": "incoming_call"}
	}

	if err := services.SendIncomingCallPush(data.Sid, data.ToUserID, payload); err != nil {
		if errors.Is(err, services.ErrNoSubscription) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if errors.Is(err, services.ErrSubscriptionGone) {
			return fiber.NewError(fiber.StatusGone, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{"success": true})
}

func savePushSubscription(c *fiber.Ctx) error {
	var data struct {
		UserID   string `json:"userId" validate:"required"`
		Endpoint string `json:"endpoint" validate:"required"`
		Keys     struct {
			Auth   string `json:"auth" validate:"required"`
			P256dh string `json:"p256dh" validate:"required"`
		} `json:"keys"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	subscription, err := services.SavePushSubscription(data.UserID, data.Endpoint, data.Keys.Auth, data.Keys.P256dh)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"id":      subscription.ID,
	})
}

func getLineToken(c *fiber.Ctx) error {
	token, err := services.IssueChannelToken()
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_in":   token.ExpiresIn,
	})
}

func sendInvite(c *fiber.Ctx) error {
	var data struct {
		ToUserID    string `json:"toUserId" validate:"required"`
		RoomID      string `json:"roomId" validate:"required"`
		InviterName string `json:"inviterName"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	if err := services.SendRoomInvite(data.ToUserID, data.RoomID, data.InviterName); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	return c.JSON(fiber.Map{"success": true})
}
