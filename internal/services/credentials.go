package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/internal/repositories"
	"github.com/spendwise/backend/pkg/utils"
)

type CredentialVerifier struct {
	Users repositories.UserRepository
}

func NewCredentialVerifier(users repositories.UserRepository) *CredentialVerifier {
	return &CredentialVerifier{Users: users}
}

// Verify looks up name and checks password against the stored hash.
func (v *CredentialVerifier) Verify(ctx context.Context, name, password string) (*models.User, error) {
	user, err := v.Users.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound("user not found", err)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	ok, err := utils.CheckPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("check password for %s: %w", user.ID, err)
	}
	if !ok {
		return nil, unauthorized("invalid credentials", nil)
	}
	return user, nil
}
