package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spendwise/backend/internal/bootstrap"
	"github.com/spendwise/backend/internal/config"
	"github.com/spendwise/backend/internal/handlers"
	"github.com/spendwise/backend/internal/middleware"
	"github.com/spendwise/backend/internal/services"
	"github.com/spendwise/backend/internal/session"
	"github.com/spendwise/backend/internal/totp"
	"github.com/spendwise/backend/pkg/logger"
	"github.com/spendwise/backend/pkg/utils"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("reading .env failed: %v", err)
	}
	cfg := config.Load()
	logger.Init(cfg.Env, cfg.Log.Level)
	defer logger.Sync()

	utils.ConfigureEncryption(cfg.Security.EncryptionSecret)
	if !utils.EncryptionEnabled() {
		logger.Warn("encryption_disabled", map[string]interface{}{
			"reason": "ENCRYPTION_SECRET not set, device secrets are stored in plaintext",
		})
	}

	ctx := context.Background()

	store, err := bootstrap.OpenUserStore(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer store.Close()

	sessionStore, closeSessions, err := bootstrap.OpenSessionStore(ctx, cfg)
	if err != nil {
		log.Fatalf("session store initialization failed: %v", err)
	}
	defer closeSessions()

	auditService := services.NewAuditService(store.DB)
	defer auditService.Close()

	userAdmin := services.NewUserAdmin(store.Users, auditService)
	seeded, err := userAdmin.EnsureSuperadmin(ctx, cfg.Admin.Name, cfg.Admin.Password)
	if err != nil {
		log.Fatalf("superadmin seeding failed: %v", err)
	}
	if seeded {
		logger.Info("superadmin_seeded", map[string]interface{}{"name": cfg.Admin.Name})
	}

	sessions := session.NewManager(sessionStore)
	sessionMiddleware := middleware.NewSessionMiddleware(sessions, cfg.Session.CookieName, cfg.Session.CookieSecure, cfg.Session.TTL)
	authService := services.NewAuthService(store.Users, sessions, totp.NewEngine(cfg.TOTP.Issuer), auditService)

	app := fiber.New(fiber.Config{BodyLimit: 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.CORSOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	handlers.Register(app, handlers.NewAuthHandler(authService, sessionMiddleware), handlers.NewUsersHandler(userAdmin), sessionMiddleware)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":          cfg.Server.Port,
		"address":       listenAddr,
		"db_driver":     cfg.DB.Driver,
		"session_store": cfg.Session.Store,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("server_shutdown", map[string]interface{}{"signal": sig.String()})
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			logger.Warn("server_shutdown_timeout", nil)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("server_error", err, nil)
		}
	}
}
