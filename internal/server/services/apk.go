package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/dbx"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

var errNoActiveVersion = common.NewError(common.ErrorNotFound, "Aktif APK sürümü yok")

// PublishRequest describes a new release.
type PublishRequest struct {
	Version      string `json:"version"`
	FileURL      string `json:"file_url"`
	FileSize     int64  `json:"file_size"`
	ReleaseNotes string `json:"release_notes"`
	MinAndroid   string `json:"min_android_version"`
}

// ApkService manages published releases and download tracking.
type ApkService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
	newToken    func() string
}

func NewApkService(db *sql.DB, m repomanager.RepositoryManager) *ApkService {
	return &ApkService{
		db:          db,
		repomanager: m,
		now:         time.Now,
		newToken:    func() string { return uuid.NewString() },
	}
}

// Publish stores req as the active release. Every other release is
// deactivated in the same transaction.
func (s *ApkService) Publish(ctx context.Context, req PublishRequest) (*models.ApkVersion, error) {
	version := strings.TrimSpace(req.Version)
	if !models.ValidVersion(version) {
		return nil, common.NewError(common.ErrValidation, "version must look like 1.2.3")
	}
	if req.FileSize < 0 {
		return nil, common.NewError(common.ErrValidation, "file_size must not be negative")
	}

	var out *models.ApkVersion
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.ApkVersions(tx)
		// Nothing has the nil id, so this clears every active row.
		if err := repo.DeactivateAll(ctx, uuid.Nil.String()); err != nil {
			return err
		}
		v, err := repo.Create(ctx, &models.ApkVersion{
			Version:      version,
			FileURL:      strings.TrimSpace(req.FileURL),
			FileSize:     req.FileSize,
			ReleaseNotes: req.ReleaseNotes,
			MinAndroid:   strings.TrimSpace(req.MinAndroid),
			IsActive:     true,
		})
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, common.NewError(common.ErrConflict, fmt.Sprintf("version %s already exists", version))
		}
		return nil, err
	}
	return out, nil
}

func (s *ApkService) ListVersions(ctx context.Context) ([]*models.ApkVersion, error) {
	return s.repomanager.ApkVersions(s.db).List(ctx)
}

// Latest returns the active release.
func (s *ApkService) Latest(ctx context.Context) (*models.ApkVersion, error) {
	v, err := s.repomanager.ApkVersions(s.db).GetActive(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, errNoActiveVersion
	}
	return v, err
}

func (s *ApkService) DeleteVersion(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.NewError(common.ErrValidation, "invalid version id")
	}
	return s.repomanager.ApkVersions(s.db).Delete(ctx, id)
}

// RecordDownload logs a download by userID and returns the row with its
// fresh download token.
func (s *ApkService) RecordDownload(ctx context.Context, userID, versionID string, deviceInfo json.RawMessage) (*models.ApkDownload, error) {
	if userID == "" {
		return nil, errNoSession
	}
	if versionID != "" {
		if _, err := uuid.Parse(versionID); err != nil {
			return nil, common.NewError(common.ErrValidation, "invalid apk_version_id")
		}
	}
	if len(deviceInfo) > 0 && !json.Valid(deviceInfo) {
		return nil, common.NewError(common.ErrValidation, "device_info must be JSON")
	}

	return s.repomanager.Downloads(s.db).Create(ctx, &models.ApkDownload{
		UserID:        userID,
		ApkVersionID:  versionID,
		DownloadToken: s.newToken(),
		DeviceInfo:    deviceInfo,
		DownloadedAt:  s.now(),
	})
}

// MarkInstalled stamps the install time on one of the caller's downloads.
func (s *ApkService) MarkInstalled(ctx context.Context, userID, token string) error {
	if userID == "" {
		return errNoSession
	}
	if _, err := uuid.Parse(token); err != nil {
		return common.NewError(common.ErrValidation, "invalid download token")
	}
	return s.repomanager.Downloads(s.db).MarkInstalled(ctx, userID, token, s.now())
}

func (s *ApkService) ListDownloads(ctx context.Context, limit int) ([]*models.ApkDownload, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repomanager.Downloads(s.db).List(ctx, limit)
}
