package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/sorariku/liffcall/pkg/internal/http/exts"
	"github.com/sorariku/liffcall/pkg/internal/services"
)

func initiateAgentCall(c *fiber.Ctx) error {
	var data struct {
		ToUserID        string   `json:"toUserId" validate:"required"`
		ToServiceID     string   `json:"toServiceId" validate:"required"`
		CallerUserID    string   `json:"callerUserId" validate:"required"`
		CallerServiceID string   `json:"callerServiceId" validate:"required"`
		AudioFileIDs    []string `json:"audioFileIds"`
		Language        string   `json:"language"`
		IsRetry         bool     `json:"isRetry"`
		ParentSid       *string  `json:"parentSid"`
		RetryAttempt    int      `json:"retryAttempt"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	session, err := services.InitiateAgentCall(c.UserContext(), services.InitiateCallOptions{
		CalleeID:        data.ToUserID,
		CalleeServiceID: data.ToServiceID,
		CallerID:        data.CallerUserID,
		CallerServiceID: data.CallerServiceID,
		AudioFileIDs:    data.AudioFileIDs,
		Language:        data.Language,
		ParentSid:       data.ParentSid,
		RetryAttempt:    data.RetryAttempt,
	})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"sid":     session.Sid,
		"roomId":  session.RoomID,
	})
}

// agentCallDelivery accepts the provider's delivery result webhook. Whatever
// happens downstream, the provider gets 200 back so it stops retrying; the
// only exception is a missing sid.
func agentCallDelivery(c *fiber.Ctx) error {
	var data struct {
		Sid        string `json:"sid"`
		Result     string `json:"result"`
		FailReason string `json:"fail_reason"`
		Timestamp  int64  `json:"timestamp"`
	}
	if c.Method() == fiber.MethodGet {
		data.Sid = c.Query("sid")
		data.Result = c.Query("result")
		data.FailReason = c.Query("fail_reason")
		data.Timestamp = int64(c.QueryInt("timestamp", 0))
	} else if err := c.BodyParser(&data); err != nil {
		log.Warn().Err(err).Msg("An error occurred when parsing a delivery callback.")
	}

	if len(data.Sid) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "sid is required")
	}

	services.HandleCallDelivery(data.Sid, data.Result, datatypes.JSONMap{
		"result":      data.Result,
		"fail_reason": data.FailReason,
		"timestamp":   data.Timestamp,
	})

	return c.JSON(fiber.Map{"success": true})
}

func scheduleAgentCallRetry(c *fiber.Ctx) error {
	var data struct {
		OriginalSid  string `json:"originalSid" validate:"required"`
		DelaySeconds int    `json:"delaySeconds"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}
	if data.DelaySeconds <= 0 {
		data.DelaySeconds = 60
	}

	task, err := services.ScheduleRetry(data.OriginalSid, time.Duration(data.DelaySeconds)*time.Second)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"retryId":     task.ID,
		"scheduledAt": task.ScheduledAt,
	})
}

func getCallHistory(c *fiber.Ctx) error {
	userID := c.Query("userId")
	if len(userID) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "userId is required")
	}
	days := c.QueryInt("days", 30)

	peers, err := services.ListCallHistory(userID, days)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"contacts": peers,
	})
}

func listActiveRooms(c *fiber.Ctx) error {
	minutes := c.QueryInt("minutes", 60)

	rooms, err := services.ListActiveRooms(minutes)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"rooms":   rooms,
	})
}
