package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/csrf"
	"github.com/spendwise/backend/internal/middleware"
	"github.com/spendwise/backend/internal/services"
	"github.com/spendwise/backend/internal/session"
	"github.com/spendwise/backend/pkg/utils"
)

type AuthHandler struct {
	Auth     *services.AuthService
	Sessions *middleware.SessionMiddleware
}

func NewAuthHandler(auth *services.AuthService, sessions *middleware.SessionMiddleware) *AuthHandler {
	return &AuthHandler{Auth: auth, Sessions: sessions}
}

type loginRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Password   string `json:"password" validate:"required"`
	DeviceName string `json:"deviceName" validate:"omitempty,max=100"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

func sessionFlags(s *session.Session) fiber.Map {
	return fiber.Map{
		"twoFactorPending":  s.TwoFactorPending,
		"twoFactorVerified": s.TwoFactorVerified,
		"authenticated":     s.Authenticated,
	}
}

func sessionUser(s *session.Session) fiber.Map {
	user := sessionFlags(s)
	if s.User != nil {
		user["id"] = s.User.ID
		user["name"] = s.User.Name
		user["role"] = s.User.Role
	}
	return user
}

// rotate points the cookie and the request at a regenerated session and
// returns a csrf token for it.
func (h *AuthHandler) rotate(c *fiber.Ctx, sess *session.Session) (string, error) {
	h.Sessions.SetCookie(c, sess)
	middleware.SetCurrentSession(c, sess)
	return csrf.Issue(sess)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	result, err := h.Auth.Login(c.UserContext(), services.LoginInput{
		Name:       req.Name,
		Password:   req.Password,
		DeviceName: req.DeviceName,
		SessionID:  c.Cookies(h.Sessions.CookieName),
		Meta:       requestMeta(c),
	})
	if err != nil {
		return respondError(c, "login_failed", err)
	}

	token, err := h.rotate(c, result.Session)
	if err != nil {
		return respondError(c, "csrf_issue_failed", err)
	}

	var qr, uri interface{}
	if result.Enrollment != nil {
		qr = result.Enrollment.QR
		uri = result.Enrollment.URI
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"qr":         qr,
		"otpauthUri": uri,
		"deviceId":   result.Device.DeviceID.String(),
		"csrfToken":  token,
		"user":       sessionUser(result.Session),
	})
}

func (h *AuthHandler) VerifyTwoFactor(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	current := middleware.GetCurrentSession(c)
	result, err := h.Auth.VerifyTwoFactor(c.UserContext(), current.ID, req.Token, requestMeta(c))
	if err != nil {
		return respondError(c, "2fa_verify_failed", err)
	}

	token, err := h.rotate(c, result.Session)
	if err != nil {
		return respondError(c, "csrf_issue_failed", err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":   "two-factor verification successful",
		"verified":  true,
		"csrfToken": token,
		"session":   sessionFlags(result.Session),
	})
}

// CSRFToken issues a token for the caller's session, starting an anonymous
// session when the request carries none.
func (h *AuthHandler) CSRFToken(c *fiber.Ctx) error {
	var id string
	if current := middleware.GetCurrentSession(c); current != nil {
		id = current.ID
	}

	sess, created, err := h.Auth.EnsureSession(c.UserContext(), id)
	if err != nil {
		return respondError(c, "session_start_failed", err)
	}
	if created {
		h.Sessions.SetCookie(c, sess)
	}

	token, err := csrf.Issue(sess)
	if err != nil {
		return respondError(c, "csrf_issue_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"csrfToken": token})
}

func (h *AuthHandler) Session(c *fiber.Ctx) error {
	sess, err := h.Auth.CurrentSession(c.UserContext(), middleware.GetCurrentSession(c).ID)
	if err != nil {
		return respondError(c, "session_lookup_failed", err)
	}

	data := sessionFlags(sess)
	data["user"] = sess.User
	data["deviceId"] = sess.DeviceID
	return utils.Success(c, fiber.StatusOK, data)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.Auth.Logout(c.UserContext(), middleware.GetCurrentSession(c), requestMeta(c)); err != nil {
		return respondError(c, "logout_failed", err)
	}
	h.Sessions.ClearCookie(c)
	middleware.SetCurrentSession(c, nil)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

// Devices lists the caller's own devices. Secrets are never serialized.
func (h *AuthHandler) Devices(c *fiber.Ctx) error {
	sess := middleware.GetCurrentSession(c)
	userID, err := uuid.Parse(sess.User.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "not authenticated")
	}

	devices, err := h.Auth.Devices.List(c.UserContext(), userID)
	if err != nil {
		return respondError(c, "device_list_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, devices)
}
