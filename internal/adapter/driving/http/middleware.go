package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const (
	userIDHeader   = "X-User-ID"
	userNameHeader = "X-User-Name"
)

type ctxKey int

const participantKey ctxKey = iota

// requestLogger writes one access line per request to the global zerolog
// logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("Request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// withUser resolves the calling user from the X-User-ID header, or the user_id
// query parameter for browsers opening a WebSocket.
func withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := domain.Participant{
			ID:   domain.UserID(strings.TrimSpace(r.Header.Get(userIDHeader))),
			Name: r.Header.Get(userNameHeader),
		}
		if !p.ID.Valid() {
			p.ID = domain.UserID(strings.TrimSpace(r.URL.Query().Get("user_id")))
		}
		if p.Name == "" {
			p.Name = r.URL.Query().Get("user_name")
		}
		if !p.ID.Valid() {
			writeError(w, domain.ErrInvalidParticipant)
			return
		}
		ctx := context.WithValue(r.Context(), participantKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func participantFrom(ctx context.Context) domain.Participant {
	p, _ := ctx.Value(participantKey).(domain.Participant)
	return p
}
