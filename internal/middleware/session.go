package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spendwise/backend/internal/csrf"
	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/internal/session"
	"github.com/spendwise/backend/pkg/logger"
	"github.com/spendwise/backend/pkg/utils"
)

const currentSessionKey = "currentSession"

type SessionMiddleware struct {
	Sessions     *session.Manager
	CookieName   string
	CookieSecure bool
	TTL          time.Duration
}

func NewSessionMiddleware(sessions *session.Manager, cookieName string, secure bool, ttl time.Duration) *SessionMiddleware {
	return &SessionMiddleware{Sessions: sessions, CookieName: cookieName, CookieSecure: secure, TTL: ttl}
}

func CORS(origins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, " + csrf.HeaderName,
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowCredentials: true,
	})
}

// LoadSession resolves the session cookie. Unknown or expired ids are
// treated as no session.
func (m *SessionMiddleware) LoadSession(c *fiber.Ctx) error {
	id := c.Cookies(m.CookieName)
	if id == "" {
		return c.Next()
	}

	sess, err := m.Sessions.Load(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.Next()
		}
		logger.Error("session_load_failed", err, map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "internal error")
	}

	c.Locals(currentSessionKey, sess)
	if sess.User != nil {
		c.Locals("userID", sess.User.ID)
	}
	return c.Next()
}

func (m *SessionMiddleware) SetCookie(c *fiber.Ctx, sess *session.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     m.CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  time.Now().Add(m.TTL),
		HTTPOnly: true,
		Secure:   m.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (m *SessionMiddleware) ClearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     m.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   m.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SetCurrentSession replaces the session seen by the rest of the request,
// after a handler regenerated it.
func SetCurrentSession(c *fiber.Ctx, sess *session.Session) {
	c.Locals(currentSessionKey, sess)
	if sess != nil && sess.User != nil {
		c.Locals("userID", sess.User.ID)
	}
}

func GetCurrentSession(c *fiber.Ctx) *session.Session {
	value := c.Locals(currentSessionKey)
	if value == nil {
		return nil
	}
	sess, ok := value.(*session.Session)
	if !ok {
		return nil
	}
	return sess
}

func RequireSession(c *fiber.Ctx) error {
	if GetCurrentSession(c) == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "no active session")
	}
	return c.Next()
}

func RequireCSRF(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Get(csrf.HeaderName))
	if err := csrf.Validate(GetCurrentSession(c), token); err != nil {
		logger.Warn("csrf_validation_failed", map[string]interface{}{
			"ip":     c.IP(),
			"path":   c.Path(),
			"method": c.Method(),
			"reason": err.Error(),
		})
		return utils.Error(c, fiber.StatusForbidden, "invalid csrf token")
	}
	return c.Next()
}

func RequireAuthenticated(c *fiber.Ctx) error {
	sess := GetCurrentSession(c)
	if sess.State() != session.StateAuthenticated {
		return utils.Error(c, fiber.StatusUnauthorized, "not authenticated")
	}
	return c.Next()
}

func RequireSuperadmin(c *fiber.Ctx) error {
	sess := GetCurrentSession(c)
	if sess.State() != session.StateAuthenticated || sess.User == nil || sess.User.Role != string(models.UserRoleSuperadmin) {
		logger.Warn("superadmin_required", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "superadmin access required")
	}
	return c.Next()
}
