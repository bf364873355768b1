package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sorariku/liffcall/pkg/internal/http/exts"
	"github.com/sorariku/liffcall/pkg/internal/services"
)

func parseSince(raw string) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}

func listDebugLogs(c *fiber.Ctx) error {
	entries := services.DebugLogs.Since(parseSince(c.Query("since")))

	if c.Query("format") == "text" {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(services.FormatDebugLogs(entries))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(entries),
		"logs":    entries,
	})
}

func appendDebugLog(c *fiber.Ctx) error {
	var data struct {
		Level   string `json:"level"`
		Message string `json:"message" validate:"required"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}
	if len(data.Level) == 0 {
		data.Level = "info"
	}

	services.DebugLogs.Append(services.DebugLogEntry{
		Level:   data.Level,
		Message: data.Message,
	})

	return c.JSON(fiber.Map{"success": true})
}

func clearDebugLogs(c *fiber.Ctx) error {
	services.DebugLogs.Clear()
	return c.JSON(fiber.Map{"success": true})
}
