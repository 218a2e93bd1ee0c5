package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/repositories"
	"github.com/spendwise/backend/internal/services"
	"github.com/spendwise/backend/pkg/logger"
	"github.com/spendwise/backend/pkg/utils"
)

var validate = validator.New()

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestID").(string); ok {
		return id
	}
	return ""
}

func requestMeta(c *fiber.Ctx) services.RequestMeta {
	return services.RequestMeta{IP: c.IP(), RequestID: getRequestID(c)}
}

// parseBody decodes and validates a JSON body, writing the 400 response
// itself when either step fails.
func parseBody(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return false, utils.Error(c, fiber.StatusBadRequest, validationMessage(err))
	}
	return true, nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindInvalidFormat:
		return fiber.StatusBadRequest
	case services.KindForbidden:
		return fiber.StatusForbidden
	}
	return fiber.StatusInternalServerError
}

// respondError maps service errors onto the response envelope.
func respondError(c *fiber.Ctx, action string, err error) error {
	var authErr *services.AuthError
	if errors.As(err, &authErr) {
		return utils.ErrorWithHint(c, statusForKind(authErr.Kind), authErr.Message, authErr.Hint)
	}
	if errors.Is(err, repositories.ErrDuplicateName) {
		return utils.Error(c, fiber.StatusConflict, "user name already taken")
	}

	logger.Error(action, err, map[string]interface{}{
		"ip":         c.IP(),
		"path":       c.Path(),
		"request_id": getRequestID(c),
	})
	return utils.Error(c, fiber.StatusInternalServerError, "internal error")
}
