// Package downloads records APK download attempts and installs.
package downloads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, d *models.ApkDownload) (*models.ApkDownload, error)
	// MarkInstalled stamps installed_at on the caller's own download.
	// Someone else's token yields common.ErrorNotFound.
	MarkInstalled(ctx context.Context, userID, token string, at time.Time) error
	List(ctx context.Context, limit int) ([]*models.ApkDownload, error)
}
