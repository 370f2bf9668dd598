package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/cryptox"
	"github.com/dmitrijs2005/clearhuma/internal/dbx"
	"github.com/dmitrijs2005/clearhuma/internal/server/ci"
	"github.com/dmitrijs2005/clearhuma/internal/server/config"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	ApkContentType = common.ApkContentType
	CallbackPath   = "/functions/v1/apk-build-callback"

	defaultListLimit = 50
	maxListLimit     = 200
)

var (
	errInvalidSecret    = common.NewError(common.ErrorUnauthorized, "Invalid secret")
	errConfigIDRequired = common.NewError(common.ErrValidation, "config_id required")
	errConfigNotFound   = common.NewError(common.ErrorNotFound, "Config not found")
	errGitHubMissing    = common.NewError(common.ErrConfiguration, "GitHub ayarları yapılandırılmamış. Ayarlar > GitHub / APK sekmesinden girin.")
	errTriggerFailed    = common.NewError(common.ErrUpstream, "GitHub Actions trigger failed")
)

// Dispatcher starts the CI workflow for one build.
type Dispatcher interface {
	Dispatch(ctx context.Context, gh config.GitHub, d ci.Dispatch) error
}

// ArtifactStore keeps uploaded APKs and returns their public URL.
type ArtifactStore interface {
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) (string, error)
}

// BuildRequest is what an operator submits to create a build config.
type BuildRequest struct {
	Version     string   `json:"version"`
	AppName     string   `json:"app_name"`
	ServerURL   string   `json:"server_url"`
	IconURL     string   `json:"icon_url"`
	TrackingID  string   `json:"tracking_id"`
	Permissions []string `json:"permissions"`
}

// CallbackReport is the CI's report about a finished build.
type CallbackReport struct {
	ConfigID    string `json:"config_id"`
	Status      string `json:"status"`
	ApkURL      string `json:"apk_url"`
	BuildLog    string `json:"build_log"`
	GithubRunID string `json:"github_run_id"`
}

// BuildService drives a build config through its CI lifecycle.
type BuildService struct {
	db             *sql.DB
	repomanager    repomanager.RepositoryManager
	dispatcher     Dispatcher
	store          ArtifactStore
	github         config.GitHub
	callbackSecret string
	callbackURL    string
	buildTimeout   time.Duration
	now            func() time.Time
}

func NewBuildService(db *sql.DB, m repomanager.RepositoryManager, d Dispatcher, store ArtifactStore, cfg *config.Config) *BuildService {
	return &BuildService{
		db:             db,
		repomanager:    m,
		dispatcher:     d,
		store:          store,
		github:         cfg.GitHub,
		callbackSecret: cfg.CallbackSecret,
		callbackURL:    strings.TrimRight(cfg.PublicBaseURL, "/") + CallbackPath,
		buildTimeout:   cfg.BuildTimeout,
		now:            time.Now,
	}
}

// Create validates req and stores it as a pending build.
func (s *BuildService) Create(ctx context.Context, operatorID string, req BuildRequest) (*models.BuildConfig, error) {
	version := strings.TrimSpace(req.Version)
	if !models.ValidVersion(version) {
		return nil, common.NewError(common.ErrValidation, "version must look like 1.2.3")
	}
	serverURL := strings.TrimSpace(req.ServerURL)
	if serverURL == "" {
		return nil, common.NewError(common.ErrValidation, "server_url required")
	}

	appName := strings.TrimSpace(req.AppName)
	if appName == "" {
		appName = models.DefaultAppName
	}

	var perms []string
	for _, p := range req.Permissions {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	if len(perms) == 0 {
		perms = append(perms, models.DefaultPermissions...)
	}

	c, err := s.repomanager.BuildConfigs(s.db).Create(ctx, &models.BuildConfig{
		Version:     version,
		AppName:     appName,
		ServerURL:   serverURL,
		IconURL:     strings.TrimSpace(req.IconURL),
		TrackingID:  strings.TrimSpace(req.TrackingID),
		Permissions: perms,
		BuildStatus: models.BuildPending,
		CreatedBy:   operatorID,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating build config: %w", err)
	}
	return c, nil
}

func (s *BuildService) Get(ctx context.Context, id string) (*models.BuildConfig, error) {
	if id == "" {
		return nil, errConfigIDRequired
	}
	if !validConfigID(id) {
		return nil, errConfigNotFound
	}
	c, err := s.repomanager.BuildConfigs(s.db).Get(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, errConfigNotFound
	}
	return c, err
}

// List returns the newest configs first. limit is clamped to a sane range.
func (s *BuildService) List(ctx context.Context, limit int) ([]*models.BuildConfig, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repomanager.BuildConfigs(s.db).List(ctx, limit)
}

// Trigger dispatches the build workflow for a pending config. The row is
// claimed (moved to building) before the dispatch, so two concurrent
// triggers cannot both reach GitHub. A failed dispatch marks it failed.
// Missing GitHub settings leave the row pending.
func (s *BuildService) Trigger(ctx context.Context, configID string) error {
	if configID == "" {
		return errConfigIDRequired
	}
	if !validConfigID(configID) {
		return errConfigNotFound
	}

	var cfg *models.BuildConfig
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.BuildConfigs(tx)
		c, err := repo.GetForUpdate(ctx, configID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errConfigNotFound
			}
			return err
		}
		if !s.github.Configured() {
			return errGitHubMissing
		}
		if c.BuildStatus != models.BuildPending {
			return common.NewError(common.ErrConflict, fmt.Sprintf("build is already %s", c.BuildStatus))
		}
		if err := repo.MarkBuilding(ctx, c.ID, s.now()); err != nil {
			return err
		}
		cfg = c
		return nil
	})
	if err != nil {
		return err
	}

	err = s.dispatcher.Dispatch(ctx, s.github, ci.Dispatch{
		ConfigID:    cfg.ID,
		Version:     cfg.Version,
		AppName:     cfg.AppName,
		ServerURL:   cfg.ServerURL,
		IconURL:     cfg.IconURL,
		TrackingID:  cfg.TrackingID,
		Permissions: cfg.Permissions,
		CallbackURL: s.callbackURL,
	})
	if err == nil {
		return nil
	}

	// The request context may already be gone; the failure must still land.
	saveCtx := context.WithoutCancel(ctx)
	if applyErr := s.repomanager.BuildConfigs(s.db).ApplyResult(saveCtx, cfg.ID, models.BuildResult{
		Status:   models.BuildFailed,
		BuildLog: "GitHub API error: " + err.Error(),
	}); applyErr != nil {
		return errors.Join(errTriggerFailed.WithDetails(err.Error()), applyErr)
	}
	return errTriggerFailed.WithDetails(err.Error())
}

// VerifySecret checks a CI-presented secret. It fails closed when no secret
// is configured.
func (s *BuildService) VerifySecret(secret string) error {
	if !cryptox.SecretEqual(s.callbackSecret, secret) {
		return errInvalidSecret
	}
	return nil
}

// Callback applies a CI report. The secret check comes first and fails
// closed when no secret is configured.
func (s *BuildService) Callback(ctx context.Context, secret string, r CallbackReport) error {
	if err := s.VerifySecret(secret); err != nil {
		return err
	}
	if r.ConfigID == "" || r.Status == "" {
		return common.NewError(common.ErrValidation, "config_id and status required")
	}
	status := models.BuildStatus(r.Status)
	if !status.Terminal() {
		return common.NewError(common.ErrValidation, "status must be success or failed")
	}
	if !validConfigID(r.ConfigID) {
		return errConfigNotFound
	}

	return s.applyResult(ctx, r.ConfigID, models.BuildResult{
		Status:      status,
		ApkURL:      r.ApkURL,
		BuildLog:    r.BuildLog,
		GithubRunID: r.GithubRunID,
	})
}

// UploadArtifact stores body under filename and marks the config successful
// with the resulting URL.
func (s *BuildService) UploadArtifact(ctx context.Context, secret, filename, configID string, body io.ReadSeeker, size int64) (string, error) {
	if err := s.VerifySecret(secret); err != nil {
		return "", err
	}
	if filename == "" || configID == "" {
		return "", common.NewError(common.ErrValidation, "filename and config_id required")
	}
	if !safeObjectKey(filename) {
		return "", common.NewError(common.ErrValidation, "invalid filename")
	}
	if !validConfigID(configID) {
		return "", errConfigNotFound
	}

	if _, err := s.repomanager.BuildConfigs(s.db).Get(ctx, configID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", errConfigNotFound
		}
		return "", err
	}

	url, err := s.store.Put(ctx, filename, body, size, ApkContentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	if err := s.applyResult(ctx, configID, models.BuildResult{Status: models.BuildSuccess, ApkURL: url}); err != nil {
		return "", err
	}
	return url, nil
}

func (s *BuildService) applyResult(ctx context.Context, configID string, res models.BuildResult) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.BuildConfigs(tx)
		c, err := repo.GetForUpdate(ctx, configID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errConfigNotFound
			}
			return err
		}
		if !c.BuildStatus.CanTransitionTo(res.Status) {
			return common.NewError(common.ErrConflict,
				fmt.Sprintf("build is %s, cannot become %s", c.BuildStatus, res.Status))
		}
		return repo.ApplyResult(ctx, c.ID, res)
	})
}

// ReapStale fails builds that have been building for longer than the build
// timeout and returns their ids.
func (s *BuildService) ReapStale(ctx context.Context) ([]string, error) {
	cutoff := s.now().Add(-s.buildTimeout)
	note := fmt.Sprintf("No callback received within %s; marked failed.", s.buildTimeout)
	return s.repomanager.BuildConfigs(s.db).FailStale(ctx, cutoff, note)
}

// validConfigID reports whether id can name a row at all; the column is a uuid
// and Postgres rejects anything else with a syntax error.
func validConfigID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// safeObjectKey rejects keys that would escape the flat bucket layout.
func safeObjectKey(key string) bool {
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
