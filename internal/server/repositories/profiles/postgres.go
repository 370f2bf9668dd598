package profiles

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

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT user_id, full_name, email, phone, avatar_url, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`
	p := &models.Profile{}
	var phone, avatar sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&p.UserID, &p.FullName, &p.Email, &phone, &avatar, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	p.Phone = phone.String
	p.AvatarURL = avatar.String
	return p, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, full_name, email, phone, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    avatar_url = EXCLUDED.avatar_url,
		    updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.FullName, p.Email, dbx.NullString(p.Phone), dbx.NullString(p.AvatarURL))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
