package utils

import "github.com/gofiber/fiber/v2"

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// ErrorWithHint adds a client-facing remediation hint to the error envelope.
func ErrorWithHint(c *fiber.Ctx, status int, message, hint string) error {
	if hint == "" {
		return Error(c, status, message)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"hint":    hint,
	})
}
