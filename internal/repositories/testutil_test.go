package repositories

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/spendwise/backend/internal/database"
	"github.com/spendwise/backend/internal/models"
	"gorm.io/gorm"
)

func setupGormRepo(t *testing.T) *GormUserRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating schema: %v", err)
	}

	return NewGormUserRepository(db)
}

func createUser(t *testing.T, repo UserRepository, name string) *models.User {
	t.Helper()
	user := &models.User{Name: name, PasswordHash: "hash", Role: models.UserRoleUser}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("failed creating user %s: %v", name, err)
	}
	return user
}
