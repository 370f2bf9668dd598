package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/server/ci"
	"github.com/dmitrijs2005/clearhuma/internal/server/config"
)

const (
	TestToken    = "token"
	TestRepo     = "repo"
	TestWorkflow = "workflow"
)

// GitHubProber runs the read-only GitHub calls behind the settings check.
type GitHubProber interface {
	CurrentUser(ctx context.Context, token string) (*ci.UserInfo, error)
	Repository(ctx context.Context, token, repo string) (*ci.RepoInfo, error)
	Workflow(ctx context.Context, token, repo, file string) (*ci.WorkflowInfo, error)
}

// SettingsTest is what the operator asks to check. Empty values fall back to
// the running configuration.
type SettingsTest struct {
	TestType     string `json:"test_type"`
	Token        string `json:"token"`
	Repo         string `json:"repo"`
	WorkflowFile string `json:"workflow_file"`
}

// SettingsResult is the outcome of a check. A failed probe is a result, not
// an error.
type SettingsResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type SettingsService struct {
	prober GitHubProber
	github config.GitHub
}

func NewSettingsService(p GitHubProber, cfg *config.Config) *SettingsService {
	return &SettingsService{prober: p, github: cfg.GitHub}
}

func (s *SettingsService) Test(ctx context.Context, t SettingsTest) (*SettingsResult, error) {
	token := fallback(t.Token, s.github.Token)
	repo := fallback(t.Repo, s.github.Repo)
	file := fallback(t.WorkflowFile, s.github.WorkflowFile)

	switch t.TestType {
	case TestToken:
		if token == "" {
			return &SettingsResult{Message: "Token boş"}, nil
		}
		u, err := s.prober.CurrentUser(ctx, token)
		if status, ok := probeFailure(err); ok {
			return &SettingsResult{Message: fmt.Sprintf("Token geçersiz: %s", status)}, nil
		} else if err != nil {
			return nil, err
		}
		return &SettingsResult{
			Success: true,
			Message: fmt.Sprintf("Token geçerli! Kullanıcı: %s", u.Login),
			Details: u,
		}, nil

	case TestRepo:
		if repo == "" {
			return &SettingsResult{Message: "Repo boş"}, nil
		}
		r, err := s.prober.Repository(ctx, token, repo)
		if errors.Is(err, ci.ErrBadRepo) {
			return &SettingsResult{
				Message: fmt.Sprintf("Repo bulunamadı: %q owner/name biçiminde değil", repo),
			}, nil
		}
		if _, ok := probeFailure(err); ok {
			return &SettingsResult{
				Message: fmt.Sprintf("Repo bulunamadı: %d - Token'ın bu repoya erişimi var mı?", probeStatusCode(err)),
			}, nil
		} else if err != nil {
			return nil, err
		}
		visibility := "Herkese Açık"
		if r.Private {
			visibility = "Özel"
		}
		return &SettingsResult{
			Success: true,
			Message: fmt.Sprintf("Repo bulundu: %s (%s)", r.FullName, visibility),
			Details: r,
		}, nil

	case TestWorkflow:
		if file == "" {
			return &SettingsResult{Message: "Workflow dosya adı boş"}, nil
		}
		w, err := s.prober.Workflow(ctx, token, repo, file)
		if _, ok := probeFailure(err); ok || errors.Is(err, ci.ErrBadRepo) {
			return &SettingsResult{
				Message: fmt.Sprintf("Workflow bulunamadı: %s dosyası repo'da mevcut değil", file),
			}, nil
		} else if err != nil {
			return nil, err
		}
		return &SettingsResult{
			Success: true,
			Message: fmt.Sprintf("Workflow bulundu: %q (%s)", w.Name, w.State),
			Details: w,
		}, nil
	}

	return nil, common.NewError(common.ErrValidation, "Invalid test_type")
}

// probeFailure reports whether err is a GitHub response (as opposed to a
// transport failure) and returns its status line.
func probeFailure(err error) (string, bool) {
	var apiErr *ci.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return apiErr.Status, true
	}
	return "", false
}

func probeStatusCode(err error) int {
	var apiErr *ci.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
