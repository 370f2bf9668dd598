// Package users stores operator and end-user accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/clearhuma/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills its ID and CreatedAt. A duplicate email
	// yields common.ErrConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetRole(ctx context.Context, id string, role models.Role) error
}
