// Package profiles stores display data attached to an account.
package profiles

import (
	"context"

	"github.com/dmitrijs2005/clearhuma/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the user has no profile yet.
	Get(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
}
