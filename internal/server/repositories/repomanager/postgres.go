// Package repomanager provides the PostgreSQL RepositoryManager and runs the
// embedded goose migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/clearhuma/internal/dbx"
	"github.com/dmitrijs2005/clearhuma/internal/server/migrations"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/activations"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/apkversions"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/buildconfigs"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/downloads"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/signintokens"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Profiles(db dbx.DBTX) profiles.Repository {
	return profiles.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) SignInTokens(db dbx.DBTX) signintokens.Repository {
	return signintokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Activations(db dbx.DBTX) activations.Repository {
	return activations.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) BuildConfigs(db dbx.DBTX) buildconfigs.Repository {
	return buildconfigs.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ApkVersions(db dbx.DBTX) apkversions.Repository {
	return apkversions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Downloads(db dbx.DBTX) downloads.Repository {
	return downloads.NewPostgresRepository(db)
}

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations with the pgx dialect.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
