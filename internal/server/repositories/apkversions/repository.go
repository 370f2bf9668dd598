// Package apkversions stores published APK releases.
package apkversions

import (
	"context"

	"github.com/dmitrijs2005/clearhuma/internal/server/models"
)

type Repository interface {
	// Create inserts v. A duplicate version string yields common.ErrConflict.
	Create(ctx context.Context, v *models.ApkVersion) (*models.ApkVersion, error)
	// DeactivateAll clears is_active on every row except keepID.
	DeactivateAll(ctx context.Context, keepID string) error
	GetActive(ctx context.Context) (*models.ApkVersion, error)
	List(ctx context.Context) ([]*models.ApkVersion, error)
	Delete(ctx context.Context, id string) error
}
