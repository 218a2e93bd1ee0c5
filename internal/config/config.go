package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Session  SessionConfig
	Security SecurityConfig
	TOTP     TOTPConfig
	Admin    AdminConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port        string
	CORSOrigins string
}

type DBConfig struct {
	Driver        string
	Host          string
	Port          string
	User          string
	Password      string
	Name          string
	SSLMode       string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SessionConfig struct {
	Store        string
	TTL          time.Duration
	CookieName   string
	CookieSecure bool
}

type SecurityConfig struct {
	EncryptionSecret string
}

type TOTPConfig struct {
	Issuer string
}

type AdminConfig struct {
	Name     string
	Password string
}

type LogConfig struct {
	Level string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "spendwise")
	v.SetDefault("DB_PASSWORD", "spendwise_secret")
	v.SetDefault("DB_NAME", "spendwise")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "spendwise.db")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "spendwise")

	v.SetDefault("SESSION_STORE", "redis")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL", 24*time.Hour)
	v.SetDefault("SESSION_COOKIE_NAME", "spendwise_sid")
	v.SetDefault("SESSION_COOKIE_SECURE", false)

	v.SetDefault("ENCRYPTION_SECRET", "")
	v.SetDefault("TOTP_ISSUER", "Spendwise")
	v.SetDefault("ADMIN_NAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "")
}

// LoadDotEnv copies variables from the given files (".env" when none are
// named) into the process environment. Variables already set are kept and
// missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads configuration from the environment, falling back to defaults.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return &Config{
		Env: v.GetString("ENV"),
		Server: ServerConfig{
			Port:        v.GetString("SERVER_PORT"),
			CORSOrigins: v.GetString("CORS_ORIGINS"),
		},
		DB: DBConfig{
			Driver:        strings.ToLower(v.GetString("DB_DRIVER")),
			Host:          v.GetString("DB_HOST"),
			Port:          v.GetString("DB_PORT"),
			User:          v.GetString("DB_USER"),
			Password:      v.GetString("DB_PASSWORD"),
			Name:          v.GetString("DB_NAME"),
			SSLMode:       v.GetString("DB_SSLMODE"),
			SQLitePath:    v.GetString("SQLITE_PATH"),
			MongoURI:      v.GetString("MONGO_URI"),
			MongoDatabase: v.GetString("MONGO_DATABASE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Session: SessionConfig{
			Store:        strings.ToLower(v.GetString("SESSION_STORE")),
			TTL:          v.GetDuration("SESSION_TTL"),
			CookieName:   v.GetString("SESSION_COOKIE_NAME"),
			CookieSecure: v.GetBool("SESSION_COOKIE_SECURE"),
		},
		Security: SecurityConfig{
			EncryptionSecret: v.GetString("ENCRYPTION_SECRET"),
		},
		TOTP: TOTPConfig{
			Issuer: v.GetString("TOTP_ISSUER"),
		},
		Admin: AdminConfig{
			Name:     v.GetString("ADMIN_NAME"),
			Password: v.GetString("ADMIN_PASSWORD"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
