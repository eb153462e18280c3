package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/Wyydra/nexuscall/internal/core/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256

	frameSnapshot = "call.snapshot"
	frameError    = "call.error"
)

var (
	// ErrSendBufferFull means the socket does not keep up with its events.
	// The hub drops such clients.
	ErrSendBufferFull = errors.New("send buffer full")
	errClientClosed   = errors.New("client closed")
)

// WSClient is one browser socket of a user. Frames from the hub and from the
// command loop go through one queue drained by writePump, the only writer on
// the connection.
type WSClient struct {
	id     string
	userID domain.UserID
	conn   *websocket.Conn

	send      chan any
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(userID domain.UserID, conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan any, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *WSClient) ID() string {
	return c.id
}

func (c *WSClient) UserID() domain.UserID {
	return c.userID
}

// SendEvent queues ev without waiting for the socket.
func (c *WSClient) SendEvent(ev domain.Event) error {
	return c.enqueue(ev)
}

func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *WSClient) enqueue(v any) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- v:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *WSClient) writePump(l zerolog.Logger) {
	for {
		select {
		case <-c.done:
			return
		case v := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				l.Error().Err(err).Msg("Failed to write frame")
				c.Close()
				return
			}
		}
	}
}

type frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type errorFrame struct {
	Command string `json:"command"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type command struct {
	Type     string             `json:"type"`
	CallType domain.CallType    `json:"call_type"`
	Receiver domain.Participant `json:"receiver"`
	Caller   domain.Participant `json:"caller"`
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(h.AllowedOrigins, "*") || slices.Contains(h.AllowedOrigins, origin)
		},
	}
}

// ServeWS upgrades to a socket that receives the user's call events and
// accepts call commands.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	self := participantFrom(r.Context())
	m, err := h.Sessions.Attach(self)
	if err != nil {
		writeError(w, err)
		return
	}
	defer h.Sessions.Detach(self.ID)

	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := newWSClient(self.ID, conn)

	l := log.With().Str("client_id", client.id).Str("user_id", self.ID.String()).Logger()
	l.Info().Msg("New client connected")

	if err := client.enqueue(frame{Type: frameSnapshot, Data: m.Snapshot()}); err != nil {
		l.Error().Err(err).Msg("Failed to send snapshot")
		client.Close()
		return
	}
	go client.writePump(l)

	h.Hub.Register(client)
	defer func() {
		l.Info().Msg("Client disconnected")
		h.Hub.Unregister(client)
		client.Close()
	}()

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.reply(l, client, cmd.Type, fmt.Errorf("%w: %v", domain.ErrBadRequest, err))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}

		reply, err := h.dispatch(r.Context(), m, cmd)
		if err != nil {
			h.reply(l, client, cmd.Type, err)
			continue
		}
		if reply != nil {
			if err := client.enqueue(reply); err != nil {
				l.Error().Err(err).Msg("Failed to send reply")
				return
			}
		}
	}
}

// dispatch runs a socket command against the user's call. Most commands
// answer through the published events; only call.snapshot returns a frame.
func (h *Handler) dispatch(ctx context.Context, m *service.Manager, cmd command) (*frame, error) {
	var err error
	switch cmd.Type {
	case "call.start":
		_, err = m.StartCall(ctx, cmd.Receiver, cmd.CallType)
	case "call.incoming":
		_, err = m.ReceiveIncomingCall(ctx, cmd.Caller, cmd.CallType)
	case "call.accept":
		err = m.AcceptCall(ctx)
	case "call.decline":
		err = m.DeclineCall(ctx)
	case "call.end":
		err = m.EndCall(ctx)
	case "call.busy":
		err = m.MarkBusy(ctx)
	case "call.mute":
		_, err = toggle(ctx, m, "mute")
	case "call.video":
		_, err = toggle(ctx, m, "video")
	case "call.screen":
		_, err = toggle(ctx, m, "screen")
	case "call.recording":
		_, err = toggle(ctx, m, "recording")
	case frameSnapshot:
		return &frame{Type: frameSnapshot, Data: m.Snapshot()}, nil
	default:
		err = fmt.Errorf("%w: unknown command %q", domain.ErrBadRequest, cmd.Type)
	}
	return nil, err
}

func (h *Handler) reply(l zerolog.Logger, c *WSClient, cmdType string, err error) {
	l.Debug().Err(err).Str("command", cmdType).Msg("Command rejected")
	f := frame{
		Type: frameError,
		Data: errorFrame{Command: cmdType, Status: statusFor(err), Message: err.Error()},
	}
	if werr := c.enqueue(f); werr != nil {
		l.Error().Err(werr).Msg("Failed to send error frame")
	}
}
