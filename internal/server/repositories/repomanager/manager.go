package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/clearhuma/internal/dbx"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/activations"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/apkversions"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/buildconfigs"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/downloads"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/signintokens"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a *sql.DB or a *sql.Tx, so a
// service can use the same code path inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Profiles(db dbx.DBTX) profiles.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	SignInTokens(db dbx.DBTX) signintokens.Repository
	Activations(db dbx.DBTX) activations.Repository
	BuildConfigs(db dbx.DBTX) buildconfigs.Repository
	ApkVersions(db dbx.DBTX) apkversions.Repository
	Downloads(db dbx.DBTX) downloads.Repository
}
