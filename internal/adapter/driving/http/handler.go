package http

import (
	"net/http"
	"time"

	"github.com/Wyydra/nexuscall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/nexuscall/internal/core/port"
	"github.com/Wyydra/nexuscall/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

type Handler struct {
	Sessions       *service.Sessions
	History        port.CallHistoryRepository
	Hub            *ws.Hub
	AllowedOrigins []string
}

func NewHandler(sessions *service.Sessions, history port.CallHistoryRepository, hub *ws.Hub, allowedOrigins []string) *Handler {
	return &Handler{
		Sessions:       sessions,
		History:        history,
		Hub:            hub,
		AllowedOrigins: allowedOrigins,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: h.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", userIDHeader, userNameHeader},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}).Handler)

	r.Get("/healthz", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(withUser)

		r.Get("/ws", h.ServeWS)

		r.Route("/api", func(r chi.Router) {
			r.Route("/call", func(r chi.Router) {
				r.Get("/", h.GetCall)
				r.Post("/start", h.StartCall)
				r.Post("/incoming", h.ReceiveIncomingCall)
				r.Post("/accept", h.AcceptCall)
				r.Post("/decline", h.DeclineCall)
				r.Post("/end", h.EndCall)
				r.Post("/busy", h.MarkBusy)
				r.Post("/controls/{control}", h.ToggleControl)
			})
			r.Get("/calls/history", h.ListHistory)
		})
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.Sessions.Len()})
}
