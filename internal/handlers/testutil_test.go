package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/spendwise/backend/internal/csrf"
	"github.com/spendwise/backend/internal/database"
	"github.com/spendwise/backend/internal/middleware"
	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/internal/repositories"
	"github.com/spendwise/backend/internal/services"
	"github.com/spendwise/backend/internal/session"
	appTOTP "github.com/spendwise/backend/internal/totp"
	"github.com/spendwise/backend/pkg/logger"
	"github.com/spendwise/backend/pkg/utils"
	"gorm.io/gorm"
)

const testCookieName = "spendwise_sid"

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	admin *services.UserAdmin
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger.SetGlobal(logger.New(io.Discard))
	utils.DefaultArgon2Params = utils.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating schema: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := repositories.NewGormUserRepository(db)
	auditService := services.NewAuditService(db)
	t.Cleanup(func() {
		auditService.Close()
		_ = rdb.Close()
		_ = sqlDB.Close()
	})

	sessions := session.NewManager(session.NewRedisStore(rdb, time.Hour))
	sessionMiddleware := middleware.NewSessionMiddleware(sessions, testCookieName, false, time.Hour)
	authService := services.NewAuthService(repo, sessions, appTOTP.NewEngine("Spendwise"), auditService)
	userAdmin := services.NewUserAdmin(repo, auditService)

	app := fiber.New()
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS("http://localhost:3000"))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	Register(app, NewAuthHandler(authService, sessionMiddleware), NewUsersHandler(userAdmin), sessionMiddleware)

	return &testEnv{app: app, db: db, admin: userAdmin}
}

func createTestUser(t *testing.T, env *testEnv, name, password string, role models.UserRole) *models.User {
	t.Helper()
	user, err := env.admin.Create(context.Background(), name, password, role, nil, services.RequestMeta{IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}
	return user
}

// testClient carries the session cookie and csrf token between requests the
// way a browser would.
type testClient struct {
	t      *testing.T
	app    *fiber.App
	cookie string
	csrf   string
}

func newClient(t *testing.T, env *testEnv) *testClient {
	return &testClient{t: t, app: env.app}
}

func (c *testClient) do(method, path string, payload any) (*http.Response, map[string]any) {
	c.t.Helper()

	headers := map[string]string{}
	if c.cookie != "" {
		headers["Cookie"] = testCookieName + "=" + c.cookie
	}
	if c.csrf != "" {
		headers[csrf.HeaderName] = c.csrf
	}

	resp := performJSONRequest(c.t, c.app, method, path, payload, headers)
	for _, cookie := range resp.Cookies() {
		if cookie.Name != testCookieName {
			continue
		}
		if cookie.Value == "" || (!cookie.Expires.IsZero() && cookie.Expires.Before(time.Now())) {
			c.cookie = ""
		} else {
			c.cookie = cookie.Value
		}
	}

	body := decodeJSONMap(c.t, resp)
	if data, ok := body["data"].(map[string]any); ok {
		if token, ok := data["csrfToken"].(string); ok && token != "" {
			c.csrf = token
		}
	}
	return resp, body
}

func (c *testClient) login(name, password, deviceName string) (*http.Response, map[string]any) {
	c.t.Helper()
	payload := map[string]any{"name": name, "password": password}
	if deviceName != "" {
		payload["deviceName"] = deviceName
	}
	return c.do(http.MethodPost, "/api/auth/login", payload)
}

// loginAndVerify completes both login steps for a new device and returns the
// enrolled secret.
func (c *testClient) loginAndVerify(name, password, deviceName string) string {
	c.t.Helper()

	resp, body := c.login(name, password, deviceName)
	assertStatus(c.t, resp, fiber.StatusOK)
	secret := secretFromLogin(c.t, body)

	resp, body = c.do(http.MethodPost, "/api/auth/2fa/verify", map[string]any{"token": codeNow(c.t, secret)})
	assertStatus(c.t, resp, fiber.StatusOK)
	if verified, _ := dataOf(c.t, body)["verified"].(bool); !verified {
		c.t.Fatalf("expected verified=true, got %+v", body)
	}
	return secret
}

func secretFromLogin(t *testing.T, body map[string]any) string {
	t.Helper()
	uri, ok := dataOf(t, body)["otpauthUri"].(string)
	if !ok || uri == "" {
		t.Fatalf("expected otpauthUri in login response, got %+v", body)
	}
	u, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("invalid otpauth uri: %v", err)
	}
	return u.Query().Get("secret")
}

func codeNow(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("failed generating code: %v", err)
	}
	return code
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %+v", body)
	}
	return data
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
