package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/Wyydra/nexuscall/internal/core/service"
	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type startCallRequest struct {
	Receiver domain.Participant `json:"receiver"`
	Type     domain.CallType    `json:"type"`
}

type incomingCallRequest struct {
	Caller domain.Participant `json:"caller"`
	Type   domain.CallType    `json:"type"`
}

type toggleResponse struct {
	Control string `json:"control"`
	Enabled bool   `json:"enabled"`
}

func (h *Handler) manager(ctx context.Context) (*service.Manager, error) {
	return h.Sessions.Get(participantFrom(ctx))
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	return nil
}

func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.manager(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	call, err := m.StartCall(r.Context(), req.Receiver, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

// ReceiveIncomingCall simulates a call offered to the user by req.Caller.
func (h *Handler) ReceiveIncomingCall(w http.ResponseWriter, r *http.Request) {
	var req incomingCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.manager(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	call, err := m.ReceiveIncomingCall(r.Context(), req.Caller, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (h *Handler) AcceptCall(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*service.Manager).AcceptCall)
}

func (h *Handler) DeclineCall(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*service.Manager).DeclineCall)
}

func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*service.Manager).EndCall)
}

func (h *Handler) MarkBusy(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*service.Manager).MarkBusy)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(*service.Manager, context.Context) error) {
	m, err := h.manager(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(m, r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (h *Handler) ToggleControl(w http.ResponseWriter, r *http.Request) {
	control := chi.URLParam(r, "control")
	m, err := h.manager(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	enabled, err := toggle(r.Context(), m, control)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Control: control, Enabled: enabled})
}

// toggle flips one call control by name. It is shared with the socket
// commands.
func toggle(ctx context.Context, m *service.Manager, control string) (bool, error) {
	switch control {
	case "mute":
		return m.ToggleMute()
	case "video":
		return m.ToggleVideo()
	case "screen":
		return m.ToggleScreenShare(ctx)
	case "recording":
		return m.ToggleRecording()
	}
	return false, fmt.Errorf("%w: unknown control %q", domain.ErrNotFound, control)
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: invalid limit %q", domain.ErrBadRequest, raw))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	calls, err := h.History.List(r.Context(), participantFrom(r.Context()).ID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}
