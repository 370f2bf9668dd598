// Command admin bootstraps operator accounts and applies migrations.
//
//	admin [-d dsn] create-operator -email ops@example.com -name "Ops"
//	admin [-d dsn] set-role -email someone@example.com -role super_admin
//	admin [-d dsn] migrate
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/clearhuma/internal/admin"
	"github.com/dmitrijs2005/clearhuma/internal/server/config"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/clearhuma/internal/server/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cmd, args := admin.SplitCommand(os.Args[1:])
	if cmd == "" {
		admin.Usage(os.Stderr)
		return fmt.Errorf("no command given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	migrate := func(ctx context.Context) error { return rm.RunMigrations(ctx, db) }
	if cmd != "migrate" {
		if err := migrate(ctx); err != nil {
			return fmt.Errorf("migrations error: %w", err)
		}
	}

	app := admin.NewApp(services.NewUserService(db, rm, cfg), migrate, os.Stdin, os.Stdout)
	return app.Run(ctx, cmd, args)
}
