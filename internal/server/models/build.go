package models

import (
	"regexp"
	"time"
)

type BuildStatus string

const (
	BuildPending  BuildStatus = "pending"
	BuildBuilding BuildStatus = "building"
	BuildSuccess  BuildStatus = "success"
	BuildFailed   BuildStatus = "failed"
)

// Terminal reports whether no further transition is allowed, except a repeat
// report of the same status.
func (s BuildStatus) Terminal() bool {
	return s == BuildSuccess || s == BuildFailed
}

// CanTransitionTo enforces pending -> building -> {success, failed}. pending
// may also jump straight to a terminal state (dispatch failure, artifact
// uploaded before the dispatch returned). A terminal status accepts only
// itself, so a duplicate callback is harmless.
func (s BuildStatus) CanTransitionTo(next BuildStatus) bool {
	switch s {
	case BuildPending:
		return next == BuildBuilding || next.Terminal()
	case BuildBuilding:
		return next.Terminal()
	case BuildSuccess, BuildFailed:
		return next == s
	}
	return false
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidVersion reports whether v is a strict MAJOR.MINOR.PATCH string.
func ValidVersion(v string) bool {
	return versionPattern.MatchString(v)
}

const DefaultAppName = "ClearHuma"

// DefaultPermissions are requested when a build config names none.
var DefaultPermissions = []string{"INTERNET", "ACCESS_NETWORK_STATE"}

// BuildConfig is an operator-submitted APK build request and its CI state.
type BuildConfig struct {
	ID          string      `json:"id"`
	Version     string      `json:"version"`
	AppName     string      `json:"app_name"`
	ServerURL   string      `json:"server_url"`
	IconURL     string      `json:"icon_url,omitempty"`
	TrackingID  string      `json:"tracking_id,omitempty"`
	Permissions []string    `json:"permissions"`
	BuildStatus BuildStatus `json:"build_status"`
	BuildLog    string      `json:"build_log,omitempty"`
	ApkURL      string      `json:"apk_url,omitempty"`
	GithubRunID string      `json:"github_run_id,omitempty"`
	CreatedBy   string      `json:"created_by,omitempty"`
	TriggeredAt *time.Time  `json:"triggered_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// BuildResult is a CI report about a build config. Empty optional fields
// leave the stored values untouched.
type BuildResult struct {
	Status      BuildStatus
	ApkURL      string
	BuildLog    string
	GithubRunID string
}
