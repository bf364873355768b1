package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sorariku/liffcall/pkg/internal/http/exts"
	"github.com/sorariku/liffcall/pkg/internal/services"
)

// aiAgentLock multiplexes the advisory room lock operations behind one
// endpoint, the way the front-end consumes it.
func aiAgentLock(c *fiber.Ctx) error {
	var data struct {
		Action   string `json:"action" validate:"required"`
		RoomID   string `json:"roomId" validate:"required"`
		UserID   string `json:"userId"`
		UserName string `json:"userName"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	switch data.Action {
	case "status":
		status, err := services.Locks.Status(c.UserContext(), data.RoomID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"success": true,
			"locked":  status.Locked,
			"holder":  status.Holder,
		})
	case "acquire":
		if len(data.UserID) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "userId is required to acquire a lock")
		}
		result, err := services.Locks.Acquire(c.UserContext(), data.RoomID, data.UserID, data.UserName)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !result.Acquired {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success":  false,
				"acquired": false,
				"holder":   result.Holder,
			})
		}
		return c.JSON(fiber.Map{
			"success":  true,
			"acquired": true,
			"holder":   result.Holder,
		})
	case "heartbeat":
		if len(data.UserID) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "userId is required to heartbeat a lock")
		}
		alive, err := services.Locks.Heartbeat(c.UserContext(), data.RoomID, data.UserID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"success": true,
			"alive":   alive,
		})
	case "release":
		if len(data.UserID) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "userId is required to release a lock")
		}
		if err := services.Locks.Release(c.UserContext(), data.RoomID, data.UserID); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"success": true})
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown action: "+data.Action)
	}
}
