package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/clearhuma/internal/common"
)

// errorBody is the error shape every endpoint returns.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var statusByKind = []struct {
	kind   error
	status int
}{
	{common.ErrValidation, http.StatusBadRequest},
	{common.ErrorUnauthorized, http.StatusUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized},
	{common.ErrTokenExpired, http.StatusUnauthorized},
	{common.ErrRefreshTokenExpired, http.StatusUnauthorized},
	{common.ErrForbidden, http.StatusForbidden},
	{common.ErrorNotFound, http.StatusNotFound},
	{common.ErrConflict, http.StatusConflict},
	{common.ErrExpired, http.StatusGone},
	{common.ErrConfiguration, http.StatusInternalServerError},
	{common.ErrStorage, http.StatusInternalServerError},
	{common.ErrUpstream, http.StatusBadGateway},
}

// statusOf maps an error to its HTTP status; unknown errors are 500.
func statusOf(err error) int {
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// writeError renders err. A *common.Error contributes its message and
// details; other known kinds use their sentinel text; anything unknown is
// logged and reported as a generic server error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}

	var ce *common.Error
	switch {
	case errors.As(err, &ce):
		body = errorBody{Error: ce.Message, Details: ce.Details}
	case errors.Is(err, context.Canceled):
		return
	case status == http.StatusInternalServerError:
		body = errorBody{Error: "Sunucu hatası", Details: err.Error()}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed",
			"request_id", RequestIDFrom(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return common.NewError(common.ErrValidation, "invalid JSON body").WithDetails(err.Error())
	}
	return nil
}
