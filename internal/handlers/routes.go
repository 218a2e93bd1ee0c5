package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/spendwise/backend/internal/middleware"
)

// Register mounts the API on app. Session-reading routes check for a session
// before the csrf token so an expired session reports 401 rather than 403.
func Register(app *fiber.App, auth *AuthHandler, users *UsersHandler, sessions *middleware.SessionMiddleware) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", sessions.LoadSession)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/login", auth.Login)
	authRoutes.Get("/csrf-token", auth.CSRFToken)
	authRoutes.Post("/2fa/verify", middleware.RequireSession, middleware.RequireCSRF, auth.VerifyTwoFactor)
	authRoutes.Get("/session", middleware.RequireSession, middleware.RequireCSRF, auth.Session)
	authRoutes.Post("/logout", middleware.RequireSession, middleware.RequireCSRF, auth.Logout)
	authRoutes.Get("/devices", middleware.RequireSession, middleware.RequireCSRF, middleware.RequireAuthenticated, auth.Devices)

	userRoutes := api.Group("/users", middleware.RequireSession, middleware.RequireCSRF, middleware.RequireSuperadmin)
	userRoutes.Get("/", users.List)
	userRoutes.Post("/", users.Create)
	userRoutes.Put("/:id/password", users.ResetPassword)
	userRoutes.Get("/:id/devices", users.Devices)
}
