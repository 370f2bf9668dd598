package downloads

import (
	"context"
	"database/sql"
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

func (r *PostgresRepository) Create(ctx context.Context, d *models.ApkDownload) (*models.ApkDownload, error) {
	query := `
		INSERT INTO apk_downloads (user_id, apk_version_id, download_token, device_info, downloaded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		d.UserID, dbx.NullString(d.ApkVersionID), d.DownloadToken, dbx.NullJSON(d.DeviceInfo), d.DownloadedAt,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return nil, common.NewError(common.ErrorNotFound, "APK version not found")
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) MarkInstalled(ctx context.Context, userID, token string, at time.Time) error {
	query := `
		UPDATE apk_downloads SET installed_at = $3
		WHERE download_token = $2 AND user_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, userID, token, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*models.ApkDownload, error) {
	query := `
		SELECT id, user_id, apk_version_id, download_token, device_info,
		       downloaded_at, installed_at, created_at
		FROM apk_downloads
		ORDER BY downloaded_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.ApkDownload
	for rows.Next() {
		d := &models.ApkDownload{}
		var (
			versionID   sql.NullString
			deviceInfo  []byte
			installedAt sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.UserID, &versionID, &d.DownloadToken, &deviceInfo,
			&d.DownloadedAt, &installedAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		d.ApkVersionID = versionID.String
		d.DeviceInfo = dbx.RawJSON(deviceInfo)
		if installedAt.Valid {
			t := installedAt.Time
			d.InstalledAt = &t
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
