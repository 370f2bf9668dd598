package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/dbx"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/activations"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/apkversions"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/buildconfigs"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/downloads"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/signintokens"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memStore backs every fake repository. fail injects an error into the
// method named by its key, e.g. "BuildConfigs.ApplyResult".
type memStore struct {
	mu sync.Mutex

	users       map[string]*models.User
	profiles    map[string]*models.Profile
	refresh     map[string]*models.RefreshToken
	signIn      map[string]*models.SignInToken
	activations map[string]*models.Activation
	builds      map[string]*models.BuildConfig
	versions    []*models.ApkVersion
	downloads   []*models.ApkDownload

	fail map[string]error
	seq  int
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]*models.User{},
		profiles:    map[string]*models.Profile{},
		refresh:     map[string]*models.RefreshToken{},
		signIn:      map[string]*models.SignInToken{},
		activations: map[string]*models.Activation{},
		builds:      map[string]*models.BuildConfig{},
		fail:        map[string]error{},
	}
}

func (s *memStore) nextID() string {
	s.seq++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", s.seq)
}

func (s *memStore) err(name string) error { return s.fail[name] }

func (s *memStore) RunMigrations(context.Context, *sql.DB) error { return nil }

func (s *memStore) Users(dbx.DBTX) users.Repository                 { return fakeUsers{s} }
func (s *memStore) Profiles(dbx.DBTX) profiles.Repository           { return fakeProfiles{s} }
func (s *memStore) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return fakeRefresh{s} }
func (s *memStore) SignInTokens(dbx.DBTX) signintokens.Repository   { return fakeSignIn{s} }
func (s *memStore) Activations(dbx.DBTX) activations.Repository     { return fakeActivations{s} }
func (s *memStore) BuildConfigs(dbx.DBTX) buildconfigs.Repository   { return fakeBuilds{s} }
func (s *memStore) ApkVersions(dbx.DBTX) apkversions.Repository     { return fakeVersions{s} }
func (s *memStore) Downloads(dbx.DBTX) downloads.Repository         { return fakeDownloads{s} }

// --- users / profiles ---

type fakeUsers struct{ s *memStore }

func (f fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.err("Users.Create"); err != nil {
		return nil, err
	}
	for _, existing := range f.s.users {
		if existing.Email == u.Email {
			return nil, common.ErrConflict
		}
	}
	u.ID = f.s.nextID()
	u.CreatedAt = fixedNow
	f.s.users[u.ID] = u
	return u, nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, u := range f.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.err("Users.GetByID"); err != nil {
		return nil, err
	}
	if u, ok := f.s.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f fakeUsers) SetRole(_ context.Context, id string, role models.Role) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.Role = role
	return nil
}

type fakeProfiles struct{ s *memStore }

func (f fakeProfiles) Get(_ context.Context, userID string) (*models.Profile, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if p, ok := f.s.profiles[userID]; ok {
		return p, nil
	}
	return nil, common.ErrorNotFound
}

func (f fakeProfiles) Upsert(_ context.Context, p *models.Profile) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.err("Profiles.Upsert"); err != nil {
		return err
	}
	f.s.profiles[p.UserID] = p
	return nil
}

// --- tokens ---

type fakeRefresh struct{ s *memStore }

func (f fakeRefresh) Create(_ context.Context, userID, token string, validity time.Duration) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.err("RefreshTokens.Create"); err != nil {
		return err
	}
	f.s.refresh[token] = &models.RefreshToken{ID: f.s.nextID(), UserID: userID, Token: token, Expires: fixedNow.Add(validity)}
	return nil
}

func (f fakeRefresh) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if t, ok := f.s.refresh[token]; ok {
		return t, nil
	}
	return nil, common.ErrorNotFound
}

func (f fakeRefresh) Delete(_ context.Context, token string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.refresh[token]; !ok {
		return common.ErrorNotFound
	}
	delete(f.s.refresh, token)
	return nil
}

func (f fakeRefresh) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for k, t := range f.s.refresh {
		if t.Expires.Before(now) {
			delete(f.s.refresh, k)
			n++
		}
	}
	return n, nil
}

type fakeSignIn struct{ s *memStore }

func (f fakeSignIn) Create(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.err("SignInTokens.Create"); err != nil {
		return err
	}
	f.s.signIn[tokenHash] = &models.SignInToken{ID: f.s.nextID(), UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (f fakeSignIn) Consume(_ context.Context, tokenHash string, now time.Time) (string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.signIn[tokenHash]
	if !ok || t.UsedAt != nil || !t.ExpiresAt.After(now) {
		return "", common.ErrorNotFound
	}
	t.UsedAt = &now
	return t.UserID, nil
}

func (f fakeSignIn) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for k, t := range f.s.signIn {
		if t.ExpiresAt.Before(now) {
			delete(f.s.signIn, k)
			n++
		}
	}
	return n, nil
}

// --- activations ---

type fakeActivations struct{ s *memStore }

func (f fakeActivations) Create(_ context.Context, a *models.Activation) (*models.Activation, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.activations[a.ActivationCode]; ok {
		return nil, common.ErrConflict
	}
	a.ID = f.s.nextID()
	a.CreatedAt = fixedNow
	f.s.activations[a.ActivationCode] = a
	return a, nil
}

func (f fakeActivations) GetByCodeForUpdate(_ context.Context, code string) (*models.Activation, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if a, ok := f.s.activations[code]; ok {
		return a, nil
	}
	return nil, common.ErrorNotFound
}

func (f fakeActivations) MarkActivated(_ context.Context, id, deviceName string, deviceInfo json.RawMessage, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, a := range f.s.activations {
		if a.ID == id {
			a.IsActivated = true
			a.ActivatedAt = &at
			a.DeviceName = deviceName
			a.DeviceInfo = deviceInfo
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f fakeActivations) ListByUser(_ context.Context, userID string) ([]*models.Activation, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.Activation
	for _, a := range f.s.activations {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// --- builds ---

type fakeBuilds struct{ s *memStore }

func (f fakeBuilds) Create(_ context.Context, c *models.BuildConfig) (*models.BuildConfig, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c.ID = f.s.nextID()
	c.CreatedAt = fixedNow
	c.UpdatedAt = fixedNow
	f.s.builds[c.ID] = c
	return c, nil
}

func (f fakeBuilds) get(id string) (*models.BuildConfig, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.err("BuildConfigs.Get"); err != nil {
		return nil, err
	}
	c, ok := f.s.builds[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (f fakeBuilds) Get(_ context.Context, id string) (*models.BuildConfig, error) { return f.get(id) }

func (f fakeBuilds) GetForUpdate(_ context.Context, id string) (*models.BuildConfig, error) {
	return f.get(id)
}

func (f fakeBuilds) List(_ context.Context, limit int) ([]*models.BuildConfig, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]*models.BuildConfig, 0, len(f.s.builds))
	for _, c := range f.s.builds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeBuilds) MarkBuilding(_ context.Context, id string, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.err("BuildConfigs.MarkBuilding"); err != nil {
		return err
	}
	c := f.s.builds[id]
	c.BuildStatus = models.BuildBuilding
	c.TriggeredAt = &at
	return nil
}

func (f fakeBuilds) ApplyResult(_ context.Context, id string, res models.BuildResult) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.err("BuildConfigs.ApplyResult"); err != nil {
		return err
	}
	c, ok := f.s.builds[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.BuildStatus = res.Status
	if res.ApkURL != "" {
		c.ApkURL = res.ApkURL
	}
	if res.BuildLog != "" {
		c.BuildLog = res.BuildLog
	}
	if res.GithubRunID != "" {
		c.GithubRunID = res.GithubRunID
	}
	return nil
}

func (f fakeBuilds) FailStale(_ context.Context, cutoff time.Time, note string) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var ids []string
	for id, c := range f.s.builds {
		if c.BuildStatus == models.BuildBuilding && c.TriggeredAt != nil && c.TriggeredAt.Before(cutoff) {
			c.BuildStatus = models.BuildFailed
			if c.BuildLog != "" {
				c.BuildLog += "\n"
			}
			c.BuildLog += note
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- apk versions / downloads ---

type fakeVersions struct{ s *memStore }

func (f fakeVersions) Create(_ context.Context, v *models.ApkVersion) (*models.ApkVersion, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.versions {
		if existing.Version == v.Version {
			return nil, common.ErrConflict
		}
		if existing.IsActive && v.IsActive {
			return nil, fmt.Errorf("two active versions")
		}
	}
	v.ID = f.s.nextID()
	v.CreatedAt = fixedNow
	f.s.versions = append(f.s.versions, v)
	return v, nil
}

func (f fakeVersions) DeactivateAll(_ context.Context, keepID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, v := range f.s.versions {
		if v.ID != keepID {
			v.IsActive = false
		}
	}
	return nil
}

func (f fakeVersions) GetActive(context.Context) (*models.ApkVersion, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, v := range f.s.versions {
		if v.IsActive {
			return v, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeVersions) List(context.Context) ([]*models.ApkVersion, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]*models.ApkVersion(nil), f.s.versions...), nil
}

func (f fakeVersions) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, v := range f.s.versions {
		if v.ID == id {
			f.s.versions = append(f.s.versions[:i], f.s.versions[i+1:]...)
			return nil
		}
	}
	return common.ErrorNotFound
}

type fakeDownloads struct{ s *memStore }

func (f fakeDownloads) Create(_ context.Context, d *models.ApkDownload) (*models.ApkDownload, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	d.ID = f.s.nextID()
	d.CreatedAt = fixedNow
	f.s.downloads = append(f.s.downloads, d)
	return d, nil
}

func (f fakeDownloads) MarkInstalled(_ context.Context, userID, token string, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, d := range f.s.downloads {
		if d.DownloadToken == token && d.UserID == userID {
			d.InstalledAt = &at
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f fakeDownloads) List(_ context.Context, limit int) ([]*models.ApkDownload, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := append([]*models.ApkDownload(nil), f.s.downloads...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
