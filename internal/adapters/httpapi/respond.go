package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/chootka/sLLM/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain sentinels to status codes
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidLightRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownLight), errors.Is(err, domain.ErrEventNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCaptureInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrDeviceUnavailable), errors.Is(err, domain.ErrCameraUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}
