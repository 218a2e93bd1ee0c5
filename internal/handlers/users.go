package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/middleware"
	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/internal/services"
	"github.com/spendwise/backend/pkg/utils"
)

type UsersHandler struct {
	Admin *services.UserAdmin
}

func NewUsersHandler(admin *services.UserAdmin) *UsersHandler {
	return &UsersHandler{Admin: admin}
}

type createUserRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=user superadmin"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

func actorID(c *fiber.Ctx) *uuid.UUID {
	sess := middleware.GetCurrentSession(c)
	if sess == nil || sess.User == nil {
		return nil
	}
	id, err := uuid.Parse(sess.User.ID)
	if err != nil {
		return nil
	}
	return &id
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	users, err := h.Admin.List(c.UserContext())
	if err != nil {
		return respondError(c, "user_list_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, users)
}

func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req createUserRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	user, err := h.Admin.Create(c.UserContext(), req.Name, req.Password, models.UserRole(req.Role), actorID(c), requestMeta(c))
	if err != nil {
		return respondError(c, "user_create_failed", err)
	}
	return utils.Success(c, fiber.StatusCreated, user)
}

func (h *UsersHandler) ResetPassword(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req resetPasswordRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	if err := h.Admin.ResetPassword(c.UserContext(), id, req.Password, actorID(c), requestMeta(c)); err != nil {
		return respondError(c, "password_reset_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}

func (h *UsersHandler) Devices(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	devices, err := h.Admin.Devices(c.UserContext(), id)
	if err != nil {
		return respondError(c, "device_list_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, devices)
}
