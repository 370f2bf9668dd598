// Package buildconfigs stores APK build requests and their CI lifecycle.
package buildconfigs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.BuildConfig) (*models.BuildConfig, error)
	Get(ctx context.Context, id string) (*models.BuildConfig, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.BuildConfig, error)
	List(ctx context.Context, limit int) ([]*models.BuildConfig, error)

	MarkBuilding(ctx context.Context, id string, at time.Time) error
	// ApplyResult stores the status and every non-empty field of res.
	ApplyResult(ctx context.Context, id string, res models.BuildResult) error
	// FailStale moves building rows triggered before cutoff to failed,
	// appending note to their log, and returns the affected ids.
	FailStale(ctx context.Context, cutoff time.Time, note string) ([]string, error)
}
