package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if val, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { os.Setenv(key, val) })
	}
	os.Unsetenv(key)
}

func TestLoad(t *testing.T) {
	t.Run("returns config with defaults when no env vars set", func(t *testing.T) {
		for _, key := range []string{"ENV", "DB_DRIVER", "SESSION_STORE", "SESSION_TTL", "SESSION_COOKIE_NAME", "SERVER_PORT", "TOTP_ISSUER"} {
			unsetEnv(t, key)
		}

		cfg := Load()
		if cfg == nil {
			t.Fatal("expected non-nil config")
		}
		if cfg.DB.Driver != "postgres" {
			t.Errorf("expected DB.Driver 'postgres', got %s", cfg.DB.Driver)
		}
		if cfg.Server.Port != "8080" {
			t.Errorf("expected Server.Port '8080', got %s", cfg.Server.Port)
		}
		if cfg.Session.Store != "redis" {
			t.Errorf("expected Session.Store 'redis', got %s", cfg.Session.Store)
		}
		if cfg.Session.TTL != 24*time.Hour {
			t.Errorf("expected Session.TTL 24h, got %v", cfg.Session.TTL)
		}
		if cfg.Session.CookieName != "spendwise_sid" {
			t.Errorf("expected Session.CookieName 'spendwise_sid', got %s", cfg.Session.CookieName)
		}
		if cfg.TOTP.Issuer != "Spendwise" {
			t.Errorf("expected TOTP.Issuer 'Spendwise', got %s", cfg.TOTP.Issuer)
		}
		if cfg.IsProduction() {
			t.Error("expected development environment by default")
		}
	})

	t.Run("reads environment variables", func(t *testing.T) {
		t.Setenv("ENV", "production")
		t.Setenv("DB_DRIVER", "SQLite")
		t.Setenv("SQLITE_PATH", "/tmp/auth.db")
		t.Setenv("SESSION_STORE", "memory")
		t.Setenv("SESSION_TTL", "90m")
		t.Setenv("SESSION_COOKIE_SECURE", "true")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("ENCRYPTION_SECRET", "enc")
		t.Setenv("ADMIN_PASSWORD", "bootstrap")

		cfg := Load()

		if !cfg.IsProduction() {
			t.Error("expected production environment")
		}
		if cfg.DB.Driver != "sqlite" {
			t.Errorf("expected DB.Driver 'sqlite', got %s", cfg.DB.Driver)
		}
		if cfg.DB.SQLitePath != "/tmp/auth.db" {
			t.Errorf("expected DB.SQLitePath '/tmp/auth.db', got %s", cfg.DB.SQLitePath)
		}
		if cfg.Session.Store != "memory" {
			t.Errorf("expected Session.Store 'memory', got %s", cfg.Session.Store)
		}
		if cfg.Session.TTL != 90*time.Minute {
			t.Errorf("expected Session.TTL 90m, got %v", cfg.Session.TTL)
		}
		if !cfg.Session.CookieSecure {
			t.Error("expected Session.CookieSecure true")
		}
		if cfg.Redis.DB != 3 {
			t.Errorf("expected Redis.DB 3, got %d", cfg.Redis.DB)
		}
		if cfg.Security.EncryptionSecret != "enc" {
			t.Errorf("expected Security.EncryptionSecret 'enc', got %s", cfg.Security.EncryptionSecret)
		}
		if cfg.Admin.Password != "bootstrap" {
			t.Errorf("expected Admin.Password 'bootstrap', got %s", cfg.Admin.Password)
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "SPENDWISE_TEST_ISSUER=FromFile\nSPENDWISE_TEST_PORT=7000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	unsetEnv(t, "SPENDWISE_TEST_ISSUER")
	t.Cleanup(func() { os.Unsetenv("SPENDWISE_TEST_ISSUER") })
	t.Setenv("SPENDWISE_TEST_PORT", "9000")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("SPENDWISE_TEST_ISSUER"); got != "FromFile" {
		t.Errorf("expected value from file, got %q", got)
	}
	if got := os.Getenv("SPENDWISE_TEST_PORT"); got != "9000" {
		t.Errorf("expected existing variable to win, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("expected missing file to be ignored, got %v", err)
	}
}
