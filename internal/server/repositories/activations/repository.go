// Package activations stores device activation codes.
package activations

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/server/models"
)

type Repository interface {
	// Create inserts a. A code that already exists yields common.ErrConflict
	// so the caller can draw another one.
	Create(ctx context.Context, a *models.Activation) (*models.Activation, error)

	// GetByCodeForUpdate locks and returns the row for code. Only meaningful
	// inside a transaction.
	GetByCodeForUpdate(ctx context.Context, code string) (*models.Activation, error)

	MarkActivated(ctx context.Context, id, deviceName string, deviceInfo json.RawMessage, at time.Time) error

	ListByUser(ctx context.Context, userID string) ([]*models.Activation, error)
}
