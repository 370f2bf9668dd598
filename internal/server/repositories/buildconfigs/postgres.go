package buildconfigs

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

func (r *PostgresRepository) Create(ctx context.Context, c *models.BuildConfig) (*models.BuildConfig, error) {
	perms, err := json.Marshal(c.Permissions)
	if err != nil {
		return nil, fmt.Errorf("encode permissions: %w", err)
	}
	if c.BuildStatus == "" {
		c.BuildStatus = models.BuildPending
	}

	query := `
		INSERT INTO apk_build_configs
			(version, app_name, server_url, icon_url, tracking_id, permissions, build_status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		c.Version, c.AppName, c.ServerURL,
		dbx.NullString(c.IconURL), dbx.NullString(c.TrackingID),
		string(perms), string(c.BuildStatus), dbx.NullString(c.CreatedBy),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

const selectConfig = `
	SELECT id, version, app_name, server_url, icon_url, tracking_id, permissions,
	       build_status, build_log, apk_url, github_run_id, created_by,
	       triggered_at, created_at, updated_at
	FROM apk_build_configs
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*models.BuildConfig, error) {
	c := &models.BuildConfig{}
	var (
		iconURL, trackingID, buildLog, apkURL, runID, createdBy sql.NullString
		perms                                                   []byte
		status                                                  string
		triggeredAt                                             sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Version, &c.AppName, &c.ServerURL, &iconURL, &trackingID, &perms,
		&status, &buildLog, &apkURL, &runID, &createdBy, &triggeredAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &c.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	c.IconURL = iconURL.String
	c.TrackingID = trackingID.String
	c.BuildStatus = models.BuildStatus(status)
	c.BuildLog = buildLog.String
	c.ApkURL = apkURL.String
	c.GithubRunID = runID.String
	c.CreatedBy = createdBy.String
	if triggeredAt.Valid {
		t := triggeredAt.Time
		c.TriggeredAt = &t
	}
	return c, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query, id string) (*models.BuildConfig, error) {
	c, err := scanConfig(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.BuildConfig, error) {
	return r.getOne(ctx, selectConfig+` WHERE id = $1`, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.BuildConfig, error) {
	return r.getOne(ctx, selectConfig+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*models.BuildConfig, error) {
	rows, err := r.db.QueryContext(ctx, selectConfig+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.BuildConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) MarkBuilding(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE apk_build_configs
		SET build_status = 'building', triggered_at = $2, updated_at = $2
		WHERE id = $1
	`
	return r.exec(ctx, query, id, at)
}

func (r *PostgresRepository) ApplyResult(ctx context.Context, id string, res models.BuildResult) error {
	query := `
		UPDATE apk_build_configs
		SET build_status = $2,
		    apk_url = COALESCE($3, apk_url),
		    build_log = COALESCE($4, build_log),
		    github_run_id = COALESCE($5, github_run_id),
		    updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, string(res.Status),
		dbx.NullString(res.ApkURL), dbx.NullString(res.BuildLog), dbx.NullString(res.GithubRunID))
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) FailStale(ctx context.Context, cutoff time.Time, note string) ([]string, error) {
	query := `
		UPDATE apk_build_configs
		SET build_status = 'failed',
		    build_log = concat_ws(E'\n', NULLIF(build_log, ''), $2::text),
		    updated_at = now()
		WHERE build_status = 'building' AND triggered_at < $1
		RETURNING id
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, note)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}
