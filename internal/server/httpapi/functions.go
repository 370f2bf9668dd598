package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/server/services"
)

type activateRequest struct {
	Action         string          `json:"action"`
	ActivationCode string          `json:"activation_code"`
	DeviceName     string          `json:"device_name"`
	DeviceInfo     json.RawMessage `json:"device_info"`
}

func (h *Handler) activateDevice(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	switch req.Action {
	case "validate":
		res, err := h.activations.Validate(r.Context(), req.ActivationCode, req.DeviceName, nullJSON(req.DeviceInfo))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)

	case "generate":
		ar, err := h.authenticate(r, errAuthRequired, errInvalidSession)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		a, err := h.activations.Generate(ar.Context(), UserIDFrom(ar.Context()))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "activation": a})

	default:
		h.writeError(w, r, common.NewError(common.ErrValidation, "Geçersiz işlem"))
	}
}

func (h *Handler) triggerBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"config_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.builds.Trigger(r.Context(), req.ConfigID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info(r.Context(), "build triggered", "config_id", req.ConfigID, "operator", UserIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Build triggered successfully"})
}

func (h *Handler) buildCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		services.CallbackReport
		Secret string `json:"secret"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.builds.Callback(r.Context(), req.Secret, req.CallbackReport); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info(r.Context(), "build reported", "config_id", req.ConfigID, "status", req.Status)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// uploadApk takes the raw APK as the request body. It is spooled to a temp
// file first because the object store needs a seekable body. The secret is
// checked before the body is read.
func (h *Handler) uploadApk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filename, configID, secret := q.Get("filename"), q.Get("config_id"), q.Get("secret")
	if filename == "" || configID == "" {
		h.writeError(w, r, common.NewError(common.ErrValidation, "filename and config_id required"))
		return
	}
	if err := h.builds.VerifySecret(secret); err != nil {
		h.writeError(w, r, err)
		return
	}

	body := r.Body
	if h.maxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	tmp, err := os.CreateTemp("", "upload-*.apk")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, r, common.NewError(common.ErrValidation,
				fmt.Sprintf("file larger than %d bytes", tooBig.Limit)))
			return
		}
		h.writeError(w, r, common.NewError(common.ErrValidation, "could not read body").WithDetails(err.Error()))
		return
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		h.writeError(w, r, err)
		return
	}

	url, err := h.builds.UploadArtifact(r.Context(), secret, filename, configID, tmp, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info(r.Context(), "artifact uploaded", "config_id", configID, "filename", filename, "bytes", size)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "apk_url": url})
}

func (h *Handler) testSettings(w http.ResponseWriter, r *http.Request) {
	var req services.SettingsTest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.settings.Test(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// nullJSON treats a JSON null like an absent value.
func nullJSON(b json.RawMessage) json.RawMessage {
	if string(b) == "null" {
		return nil
	}
	return b
}
