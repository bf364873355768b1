package api

import (
	"github.com/gofiber/fiber/v2"
)

func MapAPIs(app *fiber.App, baseURL string) {
	api := app.Group(baseURL).Name("API")
	{
		api.Post("/agent-call-initiate", initiateAgentCall)
		api.Get("/agent-call-callback", agentCallDelivery)
		api.Post("/agent-call-callback", agentCallDelivery)
		api.Post("/agent-call-retry", scheduleAgentCallRetry)

		api.Post("/ai-agent-lock", aiAgentLock)

		api.Get("/call-history", getCallHistory)
		api.Get("/active-rooms", listActiveRooms)
		api.Post("/conference-events", recordConferenceEvent)
		api.Post("/conference-token", exchangeConferenceToken)

		api.Post("/notify-call", notifyCall)
		api.Post("/save-push-subscription", savePushSubscription)
		api.Get("/get-line-token", getLineToken)
		api.Post("/send-invite", sendInvite)

		cron := api.Group("/cron").Use(requireCronSecret).Name("Cron Triggers")
		{
			cron.Get("/execute-retries", executeRetries)
			cron.Post("/execute-retries", executeRetries)
			cron.Get("/check-timeouts", checkTimeouts)
			cron.Post("/check-timeouts", checkTimeouts)
		}

		debug := api.Group("/debug-logs").Name("Debug Logs")
		{
			debug.Get("/", listDebugLogs)
			debug.Post("/", appendDebugLog)
			debug.Delete("/", clearDebugLogs)
		}
	}
}
