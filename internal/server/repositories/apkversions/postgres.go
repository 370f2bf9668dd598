package apkversions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Create(ctx context.Context, v *models.ApkVersion) (*models.ApkVersion, error) {
	query := `
		INSERT INTO apk_versions (version, file_url, file_size, release_notes, min_android_version, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	var size sql.NullInt64
	if v.FileSize > 0 {
		size = sql.NullInt64{Int64: v.FileSize, Valid: true}
	}
	err := r.db.QueryRowContext(ctx, query,
		v.Version, dbx.NullString(v.FileURL), size, dbx.NullString(v.ReleaseNotes),
		dbx.NullString(v.MinAndroid), v.IsActive,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("version %s: %w", v.Version, common.ErrConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) DeactivateAll(ctx context.Context, keepID string) error {
	query := `
		UPDATE apk_versions SET is_active = false, updated_at = now()
		WHERE is_active AND id <> $1
	`
	if _, err := r.db.ExecContext(ctx, query, keepID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectVersion = `
	SELECT id, version, file_url, file_size, release_notes, min_android_version,
	       is_active, created_at, updated_at
	FROM apk_versions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*models.ApkVersion, error) {
	v := &models.ApkVersion{}
	var (
		fileURL, notes, minAndroid sql.NullString
		size                       sql.NullInt64
	)
	if err := row.Scan(&v.ID, &v.Version, &fileURL, &size, &notes, &minAndroid,
		&v.IsActive, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.FileURL = fileURL.String
	v.FileSize = size.Int64
	v.ReleaseNotes = notes.String
	v.MinAndroid = minAndroid.String
	return v, nil
}

func (r *PostgresRepository) GetActive(ctx context.Context) (*models.ApkVersion, error) {
	v, err := scanVersion(r.db.QueryRowContext(ctx, selectVersion+` WHERE is_active LIMIT 1`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.ApkVersion, error) {
	rows, err := r.db.QueryContext(ctx, selectVersion+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.ApkVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM apk_versions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
