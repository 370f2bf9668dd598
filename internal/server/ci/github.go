// Package ci talks to GitHub Actions: it dispatches the APK build workflow
// and runs the read-only probes behind the settings check.
package ci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/server/config"
	"github.com/google/go-github/v66/github"
)

// ErrBadRepo is returned for a repository name that is not "owner/name".
var ErrBadRepo = fmt.Errorf("%w: repository must look like owner/name", common.ErrValidation)

// APIError is a failed GitHub call. StatusCode is 0 when no response arrived.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	if e.Message == "" {
		return e.Status
	}
	return e.Status + ": " + e.Message
}

func (e *APIError) Unwrap() error { return common.ErrUpstream }

// Dispatch carries the workflow inputs for one build.
type Dispatch struct {
	ConfigID    string
	Version     string
	AppName     string
	ServerURL   string
	IconURL     string
	TrackingID  string
	Permissions []string
	CallbackURL string
}

type UserInfo struct {
	Login  string `json:"login"`
	Scopes string `json:"scopes"`
}

type RepoInfo struct {
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
}

type WorkflowInfo struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Path  string `json:"path"`
}

// GitHubClient builds a go-github client per call because the token may
// differ between calls (the settings check accepts unsaved values).
type GitHubClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewGitHubClient returns a client for api.github.com, or for baseURL when
// it is non-empty. httpClient may be nil.
func NewGitHubClient(baseURL string, httpClient *http.Client) *GitHubClient {
	return &GitHubClient{httpClient: httpClient, baseURL: baseURL}
}

func (c *GitHubClient) client(token string) (*github.Client, error) {
	gh := github.NewClient(c.httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	if c.baseURL != "" {
		u, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("%w: github api url: %v", common.ErrConfiguration, err)
		}
		gh.BaseURL = u
	}
	return gh, nil
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", ErrBadRepo
	}
	return owner, name, nil
}

// Dispatch fires workflow_dispatch for gh.WorkflowFile on gh.Ref. It does
// not wait for the run.
func (c *GitHubClient) Dispatch(ctx context.Context, gh config.GitHub, d Dispatch) error {
	owner, name, err := splitRepo(gh.Repo)
	if err != nil {
		return err
	}
	client, err := c.client(gh.Token)
	if err != nil {
		return err
	}

	perms, err := json.Marshal(d.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}

	_, err = client.Actions.CreateWorkflowDispatchEventByFileName(ctx, owner, name, gh.WorkflowFile,
		github.CreateWorkflowDispatchEventRequest{
			Ref: gh.Ref,
			Inputs: map[string]interface{}{
				"config_id":    d.ConfigID,
				"version":      d.Version,
				"app_name":     d.AppName,
				"server_url":   d.ServerURL,
				"icon_url":     d.IconURL,
				"tracking_id":  d.TrackingID,
				"permissions":  string(perms),
				"callback_url": d.CallbackURL,
			},
		})
	if err != nil {
		return apiError(err)
	}
	return nil
}

// CurrentUser is GET /user. Scopes come from the X-OAuth-Scopes header and
// are empty for fine-grained tokens.
func (c *GitHubClient) CurrentUser(ctx context.Context, token string) (*UserInfo, error) {
	client, err := c.client(token)
	if err != nil {
		return nil, err
	}
	u, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, apiError(err)
	}
	return &UserInfo{Login: u.GetLogin(), Scopes: resp.Header.Get("X-OAuth-Scopes")}, nil
}

// Repository is GET /repos/{owner}/{repo}.
func (c *GitHubClient) Repository(ctx context.Context, token, repo string) (*RepoInfo, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	client, err := c.client(token)
	if err != nil {
		return nil, err
	}
	r, _, err := client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, apiError(err)
	}
	return &RepoInfo{FullName: r.GetFullName(), Private: r.GetPrivate(), DefaultBranch: r.GetDefaultBranch()}, nil
}

// Workflow is GET /repos/{owner}/{repo}/actions/workflows/{file}.
func (c *GitHubClient) Workflow(ctx context.Context, token, repo, file string) (*WorkflowInfo, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	client, err := c.client(token)
	if err != nil {
		return nil, err
	}
	w, _, err := client.Actions.GetWorkflowByFileName(ctx, owner, name, file)
	if err != nil {
		return nil, apiError(err)
	}
	return &WorkflowInfo{Name: w.GetName(), State: w.GetState(), Path: w.GetPath()}, nil
}

func apiError(err error) error {
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return &APIError{StatusCode: er.Response.StatusCode, Status: er.Response.Status, Message: er.Message}
	}
	var rl *github.RateLimitError
	if errors.As(err, &rl) && rl.Response != nil {
		return &APIError{StatusCode: rl.Response.StatusCode, Status: rl.Response.Status, Message: rl.Message}
	}
	return &APIError{Message: err.Error()}
}
