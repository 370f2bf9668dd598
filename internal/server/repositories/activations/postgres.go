package activations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/dbx"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Activation) (*models.Activation, error) {
	query := `
		INSERT INTO device_activations (user_id, activation_code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, a.UserID, a.ActivationCode, a.ExpiresAt).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("activation code: %w", common.ErrConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

const selectActivation = `
	SELECT id, user_id, activation_code, expires_at, is_activated, activated_at,
	       device_name, device_info, created_at
	FROM device_activations
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivation(row rowScanner) (*models.Activation, error) {
	a := &models.Activation{}
	var (
		activatedAt sql.NullTime
		deviceName  sql.NullString
		deviceInfo  []byte
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.ActivationCode, &a.ExpiresAt, &a.IsActivated,
		&activatedAt, &deviceName, &deviceInfo, &a.CreatedAt); err != nil {
		return nil, err
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		a.ActivatedAt = &t
	}
	a.DeviceName = deviceName.String
	a.DeviceInfo = dbx.RawJSON(deviceInfo)
	return a, nil
}

func (r *PostgresRepository) GetByCodeForUpdate(ctx context.Context, code string) (*models.Activation, error) {
	query := selectActivation + ` WHERE activation_code = $1 FOR UPDATE`
	a, err := scanActivation(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) MarkActivated(ctx context.Context, id, deviceName string, deviceInfo json.RawMessage, at time.Time) error {
	query := `
		UPDATE device_activations
		SET is_activated = true, activated_at = $2, device_name = $3, device_info = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, at, dbx.NullString(deviceName), dbx.NullJSON(deviceInfo))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Activation, error) {
	query := selectActivation + ` WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Activation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
