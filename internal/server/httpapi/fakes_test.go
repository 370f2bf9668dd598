package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/logging"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
	"github.com/dmitrijs2005/clearhuma/internal/server/services"
)

const (
	userToken     = "user-token"
	operatorToken = "operator-token"
)

type fakeSessions struct{}

func (fakeSessions) Login(_ context.Context, email, password string) (*services.TokenPair, error) {
	if email == "op@example.com" && password == "pw" {
		return &services.TokenPair{AccessToken: operatorToken, RefreshToken: "r1"}, nil
	}
	return nil, common.ErrorUnauthorized
}

func (fakeSessions) RefreshToken(_ context.Context, token string) (*services.TokenPair, error) {
	if token == "r1" {
		return &services.TokenPair{AccessToken: operatorToken, RefreshToken: "r2"}, nil
	}
	return nil, common.ErrRefreshTokenExpired
}

func (fakeSessions) VerifySignIn(_ context.Context, token string) (*services.TokenPair, error) {
	if token == "good" {
		return &services.TokenPair{AccessToken: userToken, RefreshToken: "r3"}, nil
	}
	return nil, common.NewError(common.ErrorUnauthorized, "Geçersiz veya süresi dolmuş oturum bağlantısı")
}

func (fakeSessions) Authenticate(token string) (string, error) {
	switch token {
	case userToken:
		return "u1", nil
	case operatorToken:
		return "op1", nil
	}
	return "", common.ErrorUnauthorized
}

func (fakeSessions) RequireOperator(_ context.Context, userID string) (*models.User, error) {
	if userID == "op1" {
		return &models.User{ID: "op1", Role: models.RoleSuperAdmin}, nil
	}
	return nil, common.ErrForbidden
}

type fakeActivations struct {
	generatedFor string
}

func (f *fakeActivations) Generate(_ context.Context, userID string) (*models.Activation, error) {
	f.generatedFor = userID
	return &models.Activation{ID: "a1", UserID: userID, ActivationCode: "abcd1234"}, nil
}

func (f *fakeActivations) Validate(_ context.Context, code, _ string, _ json.RawMessage) (*models.Redemption, error) {
	switch code {
	case "abcd1234":
		return &models.Redemption{Success: true, UserID: "u1", ProfileName: "Veli", TokenHash: "t", Email: "v@x"}, nil
	case "expired1":
		return nil, common.NewError(common.ErrExpired, "Aktivasyon kodunun süresi dolmuş")
	case "":
		return nil, common.NewError(common.ErrValidation, "Aktivasyon kodu gerekli")
	}
	return nil, common.NewError(common.ErrorNotFound, "Geçersiz aktivasyon kodu")
}

func (f *fakeActivations) List(_ context.Context, userID string) ([]*models.Activation, error) {
	return []*models.Activation{{ID: "a1", UserID: userID}}, nil
}

type fakeBuilds struct {
	triggerErr  error
	callbackErr error
	report      services.CallbackReport
	uploaded    []byte
	created     services.BuildRequest
}

func (f *fakeBuilds) Create(_ context.Context, operatorID string, req services.BuildRequest) (*models.BuildConfig, error) {
	f.created = req
	return &models.BuildConfig{ID: "b1", Version: req.Version, CreatedBy: operatorID, BuildStatus: models.BuildPending}, nil
}

func (f *fakeBuilds) Get(_ context.Context, id string) (*models.BuildConfig, error) {
	if id == "b1" {
		return &models.BuildConfig{ID: "b1"}, nil
	}
	return nil, common.NewError(common.ErrorNotFound, "Config not found")
}

func (f *fakeBuilds) List(_ context.Context, limit int) ([]*models.BuildConfig, error) {
	return []*models.BuildConfig{{ID: "b1"}}, nil
}

func (f *fakeBuilds) Trigger(context.Context, string) error { return f.triggerErr }

func (f *fakeBuilds) VerifySecret(secret string) error {
	if secret != "s3cret" {
		return common.NewError(common.ErrorUnauthorized, "Invalid secret")
	}
	return nil
}

func (f *fakeBuilds) Callback(_ context.Context, secret string, r services.CallbackReport) error {
	if err := f.VerifySecret(secret); err != nil {
		return err
	}
	f.report = r
	return f.callbackErr
}

func (f *fakeBuilds) UploadArtifact(_ context.Context, secret, filename, _ string, body io.ReadSeeker, size int64) (string, error) {
	if err := f.VerifySecret(secret); err != nil {
		return "", err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if int64(len(b)) != size {
		return "", errors.New("size mismatch")
	}
	f.uploaded = b
	return "https://cdn.example.com/apk-files/" + filename, nil
}

type fakeSettings struct{}

func (fakeSettings) Test(_ context.Context, t services.SettingsTest) (*services.SettingsResult, error) {
	if t.TestType != services.TestToken {
		return nil, common.NewError(common.ErrValidation, "Invalid test_type")
	}
	return &services.SettingsResult{Success: true, Message: "Token geçerli! Kullanıcı: octo"}, nil
}

type fakeApks struct {
	installedBy string
}

func (f *fakeApks) Publish(_ context.Context, req services.PublishRequest) (*models.ApkVersion, error) {
	return &models.ApkVersion{ID: "v1", Version: req.Version, IsActive: true}, nil
}

func (f *fakeApks) ListVersions(context.Context) ([]*models.ApkVersion, error) {
	return []*models.ApkVersion{{ID: "v1", Version: "1.0.0"}}, nil
}

func (f *fakeApks) Latest(context.Context) (*models.ApkVersion, error) {
	return &models.ApkVersion{ID: "v1", Version: "1.0.0", IsActive: true}, nil
}

func (f *fakeApks) DeleteVersion(_ context.Context, id string) error {
	if id != "v1" {
		return common.ErrorNotFound
	}
	return nil
}

func (f *fakeApks) RecordDownload(_ context.Context, userID, versionID string, _ json.RawMessage) (*models.ApkDownload, error) {
	return &models.ApkDownload{ID: "d1", UserID: userID, ApkVersionID: versionID, DownloadToken: "tok"}, nil
}

func (f *fakeApks) MarkInstalled(_ context.Context, userID, token string) error {
	f.installedBy = userID
	return nil
}

func (f *fakeApks) ListDownloads(context.Context, int) ([]*models.ApkDownload, error) {
	return nil, nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type testDeps struct {
	activations *fakeActivations
	builds      *fakeBuilds
	apks        *fakeApks
}

func newTestHandler(maxUpload int64, db Pinger) (*Handler, *testDeps) {
	d := &testDeps{activations: &fakeActivations{}, builds: &fakeBuilds{}, apks: &fakeApks{}}
	h := NewHandler(Options{
		Sessions:       fakeSessions{},
		Activations:    d.activations,
		Builds:         d.builds,
		Settings:       fakeSettings{},
		Apks:           d.apks,
		DB:             db,
		Logger:         logging.Nop{},
		MaxUploadBytes: maxUpload,
	})
	return h, d
}
