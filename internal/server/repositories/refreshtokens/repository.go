// Package refreshtokens declares the storage contract for refresh tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/server/models"
)

type Repository interface {
	// Create stores a new refresh token for userID expiring at now+validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find returns common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes the token. It returns common.ErrorNotFound when nothing
	// was deleted, so two concurrent rotations cannot both succeed.
	Delete(ctx context.Context, token string) error

	// DeleteExpired drops tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
