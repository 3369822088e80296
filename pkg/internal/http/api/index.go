package api

import (
	"git.solsynth.dev/hypernet/meet/pkg/internal/http/exts"
	"github.com/gofiber/fiber/v2"
)

func MapAPIs(app *fiber.App, baseURL string, limiter *exts.RateLimiter) {
	api := app.Group(baseURL).Use(exts.AuthMiddleware).Name("API")
	{
		auth := api.Group("/auth").Name("Auth API")
		{
			auth.Post("/register", limiter.Middleware(), doRegister)
			auth.Post("/login", limiter.Middleware(), doLogin)
		}

		api.Get("/users/me", getUserinfo)
		api.Get("/users/me/analytics", getUserAnalytics)

		api.Put("/subscriptions/:accountId", setSubscription)

		calls := api.Group("/calls").Name("Calls API")
		{
			calls.Get("/", listCall)
			calls.Post("/", createCall)
			calls.Post("/join", limiter.Middleware(), joinCall)
			calls.Patch("/leave", leaveCall)
			calls.Get("/:call", getCall)
			calls.Get("/:call/plan", getCallPlan)
			calls.Delete("/:call", endCall)
			calls.Post("/:call/heartbeat", heartbeatCall)
			calls.Post("/:call/token", exchangeCallToken)
			calls.Post("/:call/invite", inviteCall)
			calls.Delete("/:call/participants/:participantId", kickParticipantInCall)
		}
	}
}
