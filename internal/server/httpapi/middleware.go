package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/logging"
	"github.com/google/uuid"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	userIDKey    ctxKey = "user_id"
)

const RequestIDHeader = common.RequestIDHeaderName

const corsAllowHeaders = "authorization, x-client-info, apikey, content-type, " +
	"x-supabase-client-platform, x-supabase-client-platform-version, " +
	"x-supabase-client-runtime, x-supabase-client-runtime-version, x-request-id"

// RequestID reuses the caller's X-Request-Id or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

// UserIDFrom returns the account id set by the bearer middleware.
func UserIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(userIDKey).(string)
	return s
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func AccessLog(l logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(sw, r)
			l.Info(r.Context(), "http request",
				"request_id", RequestIDFrom(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration", time.Since(start).String(),
				"remote", r.RemoteAddr,
			)
		})
	}
}

// Recoverer turns a handler panic into a logged 500.
func Recoverer(l logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.Error(r.Context(), "panic",
						"request_id", RequestIDFrom(r.Context()),
						"path", r.URL.Path,
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Sunucu hatası"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS sets the headers browsers expect from the dashboard API and answers
// preflight requests itself.
func CORS(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	v := r.Header.Get(common.AuthorizationHeaderName)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

var (
	errAuthRequired   = common.NewError(common.ErrorUnauthorized, "Yetkilendirme gerekli")
	errInvalidSession = common.NewError(common.ErrorUnauthorized, "Geçersiz oturum")
)

// authenticate puts the caller's account id into the context. missing and
// invalid let routes keep their own wording.
func (h *Handler) authenticate(r *http.Request, missing, invalid error) (*http.Request, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, missing
	}
	userID, err := h.sessions.Authenticate(token)
	if err != nil {
		return nil, invalid
	}
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID)), nil
}

// requireUser rejects requests without a valid access token.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ar, err := h.authenticate(r, errAuthRequired, errInvalidSession)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, ar)
	})
}

// requireOperator additionally reloads the caller's role.
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ar, err := h.authenticate(r, common.NewError(common.ErrorUnauthorized, "Unauthorized"),
			common.NewError(common.ErrorUnauthorized, "Unauthorized"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if _, err := h.sessions.RequireOperator(ar.Context(), UserIDFrom(ar.Context())); err != nil {
			switch statusOf(err) {
			case http.StatusForbidden:
				err = common.NewError(common.ErrForbidden, "Forbidden")
			case http.StatusUnauthorized:
				err = common.NewError(common.ErrorUnauthorized, "Unauthorized")
			}
			h.writeError(w, ar, err)
			return
		}
		next.ServeHTTP(w, ar)
	})
}
