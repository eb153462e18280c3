package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/Wyydra/nexuscall/internal/core/service"
	"github.com/rs/zerolog/log"
)

// APIResponse is the envelope of every REST reply.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(APIResponse{Error: err.Error()}); encErr != nil {
		log.Error().Err(encErr).Msg("Failed to encode error response")
	}
}

// statusFor maps domain errors onto HTTP status codes, following wrapped
// errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCallActive),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNoActiveCall):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrInvalidCallType),
		errors.Is(err, domain.ErrInvalidParticipant):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMediaUnavailable),
		errors.Is(err, service.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
