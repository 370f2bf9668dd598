package models

import (
	"encoding/json"
	"time"
)

// ApkVersion is a published APK. At most one version is active.
type ApkVersion struct {
	ID           string    `json:"id"`
	Version      string    `json:"version"`
	FileURL      string    `json:"file_url,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	ReleaseNotes string    `json:"release_notes,omitempty"`
	MinAndroid   string    `json:"min_android_version,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ApkDownload records one download attempt. DownloadToken identifies the
// attempt for install tracking; it grants no access.
type ApkDownload struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	ApkVersionID  string          `json:"apk_version_id,omitempty"`
	DownloadToken string          `json:"download_token"`
	DeviceInfo    json.RawMessage `json:"device_info,omitempty"`
	DownloadedAt  time.Time       `json:"downloaded_at"`
	InstalledAt   *time.Time      `json:"installed_at"`
	CreatedAt     time.Time       `json:"created_at"`
}
