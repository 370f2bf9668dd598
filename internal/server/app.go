// Package server wires configuration, storage, services and transports into
// the running backend and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/logging"
	"github.com/dmitrijs2005/clearhuma/internal/server/ci"
	"github.com/dmitrijs2005/clearhuma/internal/server/config"
	"github.com/dmitrijs2005/clearhuma/internal/server/httpapi"
	"github.com/dmitrijs2005/clearhuma/internal/server/reaper"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/clearhuma/internal/server/services"
	"github.com/dmitrijs2005/clearhuma/internal/server/storage"

	gs "github.com/dmitrijs2005/clearhuma/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	handler http.Handler
	reaper  *reaper.Reaper
}

// NewApp opens the database, applies migrations and builds the services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range c.Warnings() {
		logger.Warn(ctx, w)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := storage.NewS3Store(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	gh := ci.NewGitHubClient(c.GitHub.APIBaseURL, &http.Client{Timeout: 30 * time.Second})

	us := services.NewUserService(db, rm, c)
	as := services.NewActivationService(db, rm, c)
	bs := services.NewBuildService(db, rm, gh, store, c)
	ss := services.NewSettingsService(gh, c)
	ps := services.NewApkService(db, rm)

	h := httpapi.NewHandler(httpapi.Options{
		Sessions:        us,
		Activations:     as,
		Builds:          bs,
		Settings:        ss,
		Apks:            ps,
		DB:              db,
		Logger:          logger,
		MaxUploadBytes:  c.MaxUploadBytes,
		CORSAllowOrigin: c.CORSAllowOrigin,
	})

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		handler: h.Router(),
		reaper:  reaper.New(bs, us, c.BuildReapInterval, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db, 0)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.reaper.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
