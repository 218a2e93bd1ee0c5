// Package bootstrap opens the backing stores selected by configuration. It is
// shared by the API server and authctl.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spendwise/backend/internal/config"
	"github.com/spendwise/backend/internal/database"
	"github.com/spendwise/backend/internal/repositories"
	"github.com/spendwise/backend/internal/session"
	"github.com/spendwise/backend/pkg/logger"
	"gorm.io/gorm"
)

// UserStore is the opened user store. DB is nil for the document backend,
// in which case audit entries go to the log only.
type UserStore struct {
	Users repositories.UserRepository
	DB    *gorm.DB
	close func() error
}

func (s *UserStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func OpenUserStore(ctx context.Context, cfg config.DBConfig) (*UserStore, error) {
	switch cfg.Driver {
	case "mongo", "mongodb":
		client, mdb, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		repo, err := repositories.NewMongoUserRepository(ctx, mdb)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &UserStore{
			Users: repo,
			close: func() error { return client.Disconnect(context.Background()) },
		}, nil
	default:
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, err
		}
		return &UserStore{
			Users: repositories.NewGormUserRepository(db),
			DB:    db,
			close: func() error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil
	}
}

// OpenSessionStore returns the configured session store and a function
// releasing it.
func OpenSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func() error, error) {
	switch cfg.Session.Store {
	case "memory":
		logger.Warn("session_store_memory", map[string]interface{}{
			"reason": "sessions are lost on restart and not shared between instances",
		})
		return session.NewMemoryStore(cfg.Session.TTL), func() error { return nil }, nil
	case "redis", "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return session.NewRedisStore(client, cfg.Session.TTL), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store %q", cfg.Session.Store)
	}
}
