// Package httpapi is the HTTP transport: the original function routes under
// /functions/v1, the REST additions under /api/v1 and the health probes.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dmitrijs2005/clearhuma/internal/logging"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
	"github.com/dmitrijs2005/clearhuma/internal/server/services"
	"github.com/gorilla/mux"
)

type Sessions interface {
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, token string) (*services.TokenPair, error)
	VerifySignIn(ctx context.Context, token string) (*services.TokenPair, error)
	Authenticate(accessToken string) (string, error)
	RequireOperator(ctx context.Context, userID string) (*models.User, error)
}

type Activations interface {
	Generate(ctx context.Context, userID string) (*models.Activation, error)
	Validate(ctx context.Context, code, deviceName string, deviceInfo json.RawMessage) (*models.Redemption, error)
	List(ctx context.Context, userID string) ([]*models.Activation, error)
}

type Builds interface {
	Create(ctx context.Context, operatorID string, req services.BuildRequest) (*models.BuildConfig, error)
	Get(ctx context.Context, id string) (*models.BuildConfig, error)
	List(ctx context.Context, limit int) ([]*models.BuildConfig, error)
	Trigger(ctx context.Context, configID string) error
	VerifySecret(secret string) error
	Callback(ctx context.Context, secret string, r services.CallbackReport) error
	UploadArtifact(ctx context.Context, secret, filename, configID string, body io.ReadSeeker, size int64) (string, error)
}

type Settings interface {
	Test(ctx context.Context, t services.SettingsTest) (*services.SettingsResult, error)
}

type Apks interface {
	Publish(ctx context.Context, req services.PublishRequest) (*models.ApkVersion, error)
	ListVersions(ctx context.Context) ([]*models.ApkVersion, error)
	Latest(ctx context.Context) (*models.ApkVersion, error)
	DeleteVersion(ctx context.Context, id string) error
	RecordDownload(ctx context.Context, userID, versionID string, deviceInfo json.RawMessage) (*models.ApkDownload, error)
	MarkInstalled(ctx context.Context, userID, token string) error
	ListDownloads(ctx context.Context, limit int) ([]*models.ApkDownload, error)
}

// Pinger backs the readiness probe. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	sessions       Sessions
	activations    Activations
	builds         Builds
	settings       Settings
	apks           Apks
	db             Pinger
	logger         logging.Logger
	maxUploadBytes int64
	corsOrigin     string
}

type Options struct {
	Sessions        Sessions
	Activations     Activations
	Builds          Builds
	Settings        Settings
	Apks            Apks
	DB              Pinger
	Logger          logging.Logger
	MaxUploadBytes  int64
	CORSAllowOrigin string
}

func NewHandler(o Options) *Handler {
	origin := o.CORSAllowOrigin
	if origin == "" {
		origin = "*"
	}
	return &Handler{
		sessions:       o.Sessions,
		activations:    o.Activations,
		builds:         o.Builds,
		settings:       o.Settings,
		apks:           o.Apks,
		db:             o.DB,
		logger:         o.Logger.With("module", "http"),
		maxUploadBytes: o.MaxUploadBytes,
		corsOrigin:     origin,
	}
}

// Router wires every route. The middleware wraps the router itself rather
// than being registered with Use, so unmatched requests and preflights get
// request ids, CORS headers and access logs too.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)

	fn := r.PathPrefix("/functions/v1").Subrouter()
	fn.HandleFunc("/activate-device", h.activateDevice).Methods(http.MethodPost)
	fn.Handle("/trigger-apk-build", h.operator(h.triggerBuild)).Methods(http.MethodPost)
	fn.HandleFunc("/apk-build-callback", h.buildCallback).Methods(http.MethodPost)
	fn.HandleFunc("/upload-apk", h.uploadApk).Methods(http.MethodPost, http.MethodPut)
	fn.Handle("/test-github-settings", h.operator(h.testSettings)).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/verify-otp", h.verifyOTP).Methods(http.MethodPost)

	api.Handle("/activations", h.user(h.listActivations)).Methods(http.MethodGet)
	api.Handle("/apk/versions/latest", h.user(h.latestVersion)).Methods(http.MethodGet)
	api.Handle("/apk/downloads", h.user(h.recordDownload)).Methods(http.MethodPost)
	api.Handle("/apk/downloads/{token}/installed", h.user(h.markInstalled)).Methods(http.MethodPost)

	api.Handle("/builds", h.operator(h.listBuilds)).Methods(http.MethodGet)
	api.Handle("/builds", h.operator(h.createBuild)).Methods(http.MethodPost)
	api.Handle("/builds/{id}", h.operator(h.getBuild)).Methods(http.MethodGet)
	api.Handle("/apk/versions", h.operator(h.listVersions)).Methods(http.MethodGet)
	api.Handle("/apk/versions", h.operator(h.publishVersion)).Methods(http.MethodPost)
	api.Handle("/apk/versions/{id}", h.operator(h.deleteVersion)).Methods(http.MethodDelete)
	api.Handle("/apk/downloads", h.operator(h.listDownloads)).Methods(http.MethodGet)

	return h.wrap(r)
}

// wrap applies the middleware chain, outermost first:
// RequestID, AccessLog, Recoverer, CORS. AccessLog sits outside Recoverer so
// a request that panicked is still logged with its 500.
func (h *Handler) wrap(next http.Handler) http.Handler {
	for _, mw := range []mux.MiddlewareFunc{
		CORS(h.corsOrigin),
		Recoverer(h.logger),
		AccessLog(h.logger),
		RequestID,
	} {
		next = mw(next)
	}
	return next
}

func (h *Handler) user(fn http.HandlerFunc) http.Handler     { return h.requireUser(fn) }
func (h *Handler) operator(fn http.HandlerFunc) http.Handler { return h.requireOperator(fn) }
