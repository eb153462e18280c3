package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/Wyydra/nexuscall/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrSessionClosed = errors.New("call session closed")

type Config struct {
	// ConnectDelay stands in for the signaling handshake of an outgoing call.
	ConnectDelay time.Duration
	// ClearDelay is how long a finished call stays visible before it is dropped.
	ClearDelay   time.Duration
	TickInterval time.Duration
	// SessionIdleTimeout is how long Sessions keeps an unused idle manager.
	SessionIdleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectDelay:       3 * time.Second,
		ClearDelay:         2 * time.Second,
		TickInterval:       time.Second,
		SessionIdleTimeout: 5 * time.Minute,
	}
}

type Dependencies struct {
	Devices port.MediaDevices
	Peers   port.PeerConnector
	Events  port.EventPublisher
	History port.CallHistoryRepository
	Clock   clock.Clock
}

type webrtcConnection struct {
	local       *port.MediaStream
	remote      *port.MediaStream
	screen      *port.MediaStream
	pc          port.PeerConnection
	videoSender port.Sender
	connected   bool
}

// release stops the local media and closes the peer connection. It must run
// without the manager lock held: stopping a track fires its OnEnded callbacks.
func (c *webrtcConnection) release() {
	if c == nil {
		return
	}
	c.local.Stop()
	c.screen.Stop()
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close peer connection")
		}
	}
}

type durationTicker struct {
	t    *clock.Ticker
	done chan struct{}
}

// Manager owns the single call of one user: its lifecycle, the peer
// connection and the local media toggles.
type Manager struct {
	self   domain.Participant
	deps   Dependencies
	cfg    Config
	logger zerolog.Logger

	mu           sync.Mutex
	call         *domain.Call
	controls     domain.CallControls
	conn         *webrtcConnection
	elapsed      time.Duration
	connectTimer *clock.Timer
	clearTimer   *clock.Timer
	ticker       *durationTicker
	closed       bool

	wg sync.WaitGroup
}

func NewManager(self domain.Participant, deps Dependencies, cfg Config) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Manager{
		self:   self,
		deps:   deps,
		cfg:    cfg,
		logger: log.With().Str("user_id", self.ID.String()).Logger(),
	}
}

func (m *Manager) Self() domain.Participant {
	return m.self
}

// StartCall places an outgoing call. The call shows as calling right away and
// connects once the connect delay elapses.
func (m *Manager) StartCall(ctx context.Context, receiver domain.Participant, t domain.CallType) (*domain.Call, error) {
	now := m.deps.Clock.Now()
	call, err := domain.NewOutgoingCall(m.self, receiver, t, now)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if err := m.checkIdleLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := call.Apply(domain.EventStart, now); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.call = call
	m.controls = domain.CallControls{VideoEnabled: t == domain.CallTypeVideo}
	m.elapsed = 0
	started := m.statusEventLocked()
	m.mu.Unlock()

	l := m.logger.With().Str("call_id", call.ID.String()).Logger()
	l.Info().Str("receiver", receiver.ID.String()).Str("type", string(t)).Msg("Starting call")
	m.publish(ctx, started)

	conn, offer, err := m.connect(ctx, call.ID, t)
	if err != nil {
		l.Error().Err(err).Msg("Call aborted")
		m.abort(ctx, call.ID, err)
		return nil, err
	}

	m.mu.Lock()
	if !m.isCurrentLocked(call.ID, domain.StatusCalling) {
		m.mu.Unlock()
		conn.release()
		return nil, fmt.Errorf("%w: call %s was ended while starting", domain.ErrNoActiveCall, call.ID)
	}
	m.applyControlsLocked(conn)
	m.conn = conn
	id := call.ID
	m.connectTimer = m.deps.Clock.AfterFunc(m.cfg.ConnectDelay, func() {
		m.autoConnect(id)
	})
	out := call.Clone()
	m.mu.Unlock()

	m.publish(ctx, m.event(domain.EventTypeSignal, id, offer))
	return out, nil
}

// ReceiveIncomingCall registers an invite from caller. While another call is
// active the invite is refused with a busy event.
func (m *Manager) ReceiveIncomingCall(ctx context.Context, caller domain.Participant, t domain.CallType) (*domain.Call, error) {
	now := m.deps.Clock.Now()
	call, err := domain.NewIncomingCall(caller, m.self, t, now)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if err := m.checkIdleLocked(); err != nil {
		m.mu.Unlock()
		if errors.Is(err, domain.ErrCallActive) {
			m.logger.Info().Str("caller", caller.ID.String()).Msg("Incoming call refused, busy")
			m.publish(ctx, m.event(domain.EventTypeBusy, call.ID, domain.BusyData{Caller: caller, Type: t}))
		}
		return nil, err
	}
	if err := call.Apply(domain.EventIncoming, now); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.call = call
	m.controls = domain.CallControls{VideoEnabled: t == domain.CallTypeVideo}
	m.elapsed = 0
	ev := m.statusEventLocked()
	out := call.Clone()
	m.mu.Unlock()

	m.logger.Info().Str("call_id", call.ID.String()).Str("caller", caller.ID.String()).Msg("Incoming call")
	m.publish(ctx, ev)
	return out, nil
}

// AcceptCall answers a ringing call. A media failure ends the call.
func (m *Manager) AcceptCall(ctx context.Context) error {
	m.mu.Lock()
	if m.call == nil {
		m.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	if !domain.CanTransition(m.call.Status, domain.EventAccept) {
		_, err := domain.Transition(m.call.Status, domain.EventAccept)
		m.mu.Unlock()
		return err
	}
	id, t := m.call.ID, m.call.Type
	m.mu.Unlock()

	conn, _, err := m.connect(ctx, id, t)
	if err != nil {
		m.logger.Error().Err(err).Str("call_id", id.String()).Msg("Accept failed")
		m.fail(ctx, id, err)
		return err
	}

	m.mu.Lock()
	if !m.isCurrentLocked(id, domain.StatusRinging) {
		m.mu.Unlock()
		conn.release()
		return fmt.Errorf("%w: call %s is no longer ringing", domain.ErrInvalidTransition, id)
	}
	if err := m.call.Apply(domain.EventAccept, m.deps.Clock.Now()); err != nil {
		m.mu.Unlock()
		conn.release()
		return err
	}
	conn.connected = true
	m.applyControlsLocked(conn)
	m.conn = conn
	m.startTickerLocked(id)
	evs := []domain.Event{m.statusEventLocked(), m.controlsEventLocked()}
	m.mu.Unlock()

	m.logger.Info().Str("call_id", id.String()).Msg("Call accepted")
	m.publish(ctx, evs...)
	return nil
}

// DeclineCall refuses a ringing call. In any other status nothing changes.
func (m *Manager) DeclineCall(ctx context.Context) error {
	return m.finish(ctx, domain.EventDecline)
}

// EndCall hangs up a calling or connected call, stops the local tracks and
// closes the peer connection.
func (m *Manager) EndCall(ctx context.Context) error {
	return m.finish(ctx, domain.EventEnd)
}

// MarkBusy records that the remote side refused an outgoing call as busy.
func (m *Manager) MarkBusy(ctx context.Context) error {
	return m.finish(ctx, domain.EventBusy)
}

func (m *Manager) finish(ctx context.Context, ev domain.CallEvent) error {
	m.mu.Lock()
	if m.call == nil {
		m.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	if err := m.call.Apply(ev, m.deps.Clock.Now()); err != nil {
		m.mu.Unlock()
		return err
	}
	conn := m.teardownLocked()
	m.scheduleClearLocked(m.call.ID)
	done := m.call.Clone()
	evs := []domain.Event{m.statusEventLocked(), m.controlsEventLocked()}
	m.mu.Unlock()

	conn.release()
	m.logger.Info().
		Str("call_id", done.ID.String()).
		Str("peer", done.Peer().ID.String()).
		Str("status", string(done.Status)).
		Dur("duration", done.Duration(m.deps.Clock.Now())).
		Msg("Call finished")
	m.record(ctx, done)
	m.publish(ctx, evs...)
	return nil
}

func (m *Manager) ToggleMute() (bool, error) {
	m.mu.Lock()
	if err := m.checkActiveLocked(); err != nil {
		m.mu.Unlock()
		return false, err
	}
	muted := !m.controls.Muted
	if m.conn != nil {
		for _, t := range m.conn.local.AudioTracks() {
			t.SetEnabled(!muted)
		}
	}
	m.controls.Muted = muted
	ev := m.controlsEventLocked()
	m.mu.Unlock()

	m.publish(context.Background(), ev)
	return muted, nil
}

func (m *Manager) ToggleVideo() (bool, error) {
	m.mu.Lock()
	if err := m.checkActiveLocked(); err != nil {
		m.mu.Unlock()
		return false, err
	}
	enabled := !m.controls.VideoEnabled
	if m.conn != nil {
		for _, t := range m.conn.local.VideoTracks() {
			t.SetEnabled(enabled)
		}
	}
	m.controls.VideoEnabled = enabled
	ev := m.controlsEventLocked()
	m.mu.Unlock()

	m.publish(context.Background(), ev)
	return enabled, nil
}

func (m *Manager) ToggleRecording() (bool, error) {
	m.mu.Lock()
	if err := m.checkActiveLocked(); err != nil {
		m.mu.Unlock()
		return false, err
	}
	m.controls.Recording = !m.controls.Recording
	recording := m.controls.Recording
	ev := m.controlsEventLocked()
	m.mu.Unlock()

	m.publish(context.Background(), ev)
	return recording, nil
}

// ToggleScreenShare swaps the outgoing video for a captured display track, or
// puts the camera back. The display track ending on its own also restores
// the camera.
func (m *Manager) ToggleScreenShare(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if err := m.checkActiveLocked(); err != nil {
		m.mu.Unlock()
		return false, err
	}
	if m.conn == nil {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: no media connection yet", domain.ErrInvalidTransition)
	}
	if m.controls.ScreenSharing {
		screen := m.stopScreenShareLocked()
		ev := m.controlsEventLocked()
		m.mu.Unlock()

		screen.Stop()
		m.publish(ctx, ev)
		return false, nil
	}
	id := m.call.ID
	m.mu.Unlock()

	stream, err := m.deps.Devices.GetDisplayMedia(ctx)
	if err != nil {
		m.alert(ctx, id, fmt.Errorf("screen share: %w", err))
		return false, err
	}
	tracks := stream.VideoTracks()
	if len(tracks) == 0 {
		stream.Stop()
		return false, fmt.Errorf("%w: display stream has no video track", domain.ErrMediaUnavailable)
	}
	track := tracks[0]

	m.mu.Lock()
	if m.call == nil || m.call.ID != id || !m.call.Status.IsActive() || m.conn == nil || m.controls.ScreenSharing {
		m.mu.Unlock()
		stream.Stop()
		return false, fmt.Errorf("%w: call changed during screen capture", domain.ErrInvalidTransition)
	}
	if m.conn.videoSender == nil {
		sender, err := m.conn.pc.AddTrack(track)
		if err != nil {
			m.mu.Unlock()
			stream.Stop()
			return false, fmt.Errorf("add screen track: %w", err)
		}
		m.conn.videoSender = sender
	} else if err := m.conn.videoSender.ReplaceTrack(track); err != nil {
		m.mu.Unlock()
		stream.Stop()
		return false, fmt.Errorf("replace video track: %w", err)
	}
	m.conn.screen = stream
	m.controls.ScreenSharing = true
	track.OnEnded(func() {
		m.screenShareEnded(id, track)
	})
	ev := m.controlsEventLocked()
	m.mu.Unlock()

	m.logger.Info().Str("call_id", id.String()).Str("track_id", track.ID()).Msg("Screen share started")
	m.publish(ctx, ev)
	return true, nil
}

func (m *Manager) screenShareEnded(id domain.CallID, track port.Track) {
	m.mu.Lock()
	if m.call == nil || m.call.ID != id || !m.call.Status.IsActive() || m.conn == nil || m.conn.screen == nil {
		m.mu.Unlock()
		return
	}
	owned := false
	for _, t := range m.conn.screen.Tracks {
		if t == track {
			owned = true
		}
	}
	if !owned {
		m.mu.Unlock()
		return
	}
	screen := m.stopScreenShareLocked()
	ev := m.controlsEventLocked()
	m.mu.Unlock()

	screen.Stop()
	m.logger.Info().Str("call_id", id.String()).Msg("Screen share ended by capture source")
	m.publish(context.Background(), ev)
}

// applyControlsLocked brings freshly acquired tracks in line with toggles
// made while the media was still being set up.
func (m *Manager) applyControlsLocked(conn *webrtcConnection) {
	for _, t := range conn.local.AudioTracks() {
		t.SetEnabled(!m.controls.Muted)
	}
	for _, t := range conn.local.VideoTracks() {
		t.SetEnabled(m.controls.VideoEnabled)
	}
}

// stopScreenShareLocked restores the outgoing camera track and hands back the
// display stream for the caller to stop once unlocked.
func (m *Manager) stopScreenShareLocked() *port.MediaStream {
	screen := m.conn.screen
	m.conn.screen = nil
	m.controls.ScreenSharing = false

	if m.conn.videoSender != nil {
		var camera port.Track
		if cams := m.conn.local.VideoTracks(); len(cams) > 0 && m.controls.VideoEnabled {
			camera = cams[0]
		}
		if err := m.conn.videoSender.ReplaceTrack(camera); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to restore camera track")
		}
	}
	return screen
}

// Idle reports whether the manager holds no call at all.
func (m *Manager) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call == nil
}

// Snapshot is a consistent copy of the session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Call:            m.call.Clone(),
		Controls:        m.controls,
		DurationSeconds: int64(m.elapsed / time.Second),
	}
	if m.conn != nil {
		snap.Connection.Connected = m.conn.connected
		snap.Connection.LocalTracks = trackInfos(m.conn.local)
		snap.Connection.ScreenTracks = trackInfos(m.conn.screen)
	}
	return snap
}

// Close ends any call in progress and stops every timer. The manager refuses
// new calls afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true

	var evs []domain.Event
	var done *domain.Call
	var conn *webrtcConnection
	if m.call != nil {
		now := m.deps.Clock.Now()
		switch {
		case domain.CanTransition(m.call.Status, domain.EventEnd):
			_ = m.call.Apply(domain.EventEnd, now)
			done = m.call.Clone()
		case domain.CanTransition(m.call.Status, domain.EventDecline):
			_ = m.call.Apply(domain.EventDecline, now)
			done = m.call.Clone()
		}
		conn = m.teardownLocked()
		evs = append(evs, m.event(domain.EventTypeCleared, m.call.ID, nil))
		m.call = nil
		m.conn = nil
		m.controls = domain.CallControls{}
	}
	m.stopTimersLocked()
	m.mu.Unlock()

	conn.release()
	if done != nil {
		m.record(context.Background(), done)
	}
	m.publish(context.Background(), evs...)
	m.wg.Wait()
}

func (m *Manager) connect(ctx context.Context, id domain.CallID, t domain.CallType) (*webrtcConnection, domain.Signal, error) {
	stream, err := m.deps.Devices.GetUserMedia(ctx, port.MediaConstraints{
		Audio: true,
		Video: t == domain.CallTypeVideo,
	})
	if err != nil {
		return nil, domain.Signal{}, fmt.Errorf("acquire local media: %w", err)
	}

	pc, err := m.deps.Peers.NewPeerConnection(ctx, id)
	if err != nil {
		stream.Stop()
		return nil, domain.Signal{}, fmt.Errorf("create peer connection: %w", err)
	}
	conn := &webrtcConnection{
		local:  stream,
		remote: &port.MediaStream{ID: "remote-" + id.String()},
		pc:     pc,
	}

	l := m.logger.With().Str("call_id", id.String()).Logger()
	pc.OnICECandidate(func(sig domain.Signal) {
		// There is no signaling transport: candidates only reach the user's own clients.
		l.Debug().Str("candidate", sig.Payload).Msg("ICE candidate gathered")
		m.publish(context.Background(), m.event(domain.EventTypeSignal, id, sig))
	})

	for _, track := range stream.Tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			conn.release()
			return nil, domain.Signal{}, fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		if track.Kind() == port.KindVideo {
			conn.videoSender = sender
		}
	}

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		conn.release()
		return nil, domain.Signal{}, fmt.Errorf("create offer: %w", err)
	}
	return conn, offer, nil
}

func (m *Manager) autoConnect(id domain.CallID) {
	m.mu.Lock()
	if m.closed || !m.isCurrentLocked(id, domain.StatusCalling) || m.conn == nil {
		m.mu.Unlock()
		return
	}
	if err := m.call.Apply(domain.EventConnect, m.deps.Clock.Now()); err != nil {
		m.mu.Unlock()
		m.logger.Error().Err(err).Msg("Auto connect failed")
		return
	}
	m.connectTimer = nil
	m.conn.connected = true
	m.startTickerLocked(id)
	ev := m.statusEventLocked()
	m.mu.Unlock()

	m.logger.Info().Str("call_id", id.String()).Msg("Call connected")
	m.publish(context.Background(), ev)
}

// abort drops an outgoing call that never got its media.
func (m *Manager) abort(ctx context.Context, id domain.CallID, cause error) {
	m.mu.Lock()
	if !m.isCurrentLocked(id, domain.StatusCalling) {
		m.mu.Unlock()
		return
	}
	if err := m.call.Apply(domain.EventAbort, m.deps.Clock.Now()); err != nil {
		m.mu.Unlock()
		return
	}
	conn := m.teardownLocked()
	m.call = nil
	m.conn = nil
	m.controls = domain.CallControls{}
	ev := m.event(domain.EventTypeCleared, id, nil)
	m.mu.Unlock()

	conn.release()
	m.publish(ctx, ev)
	m.alert(ctx, id, cause)
}

// fail ends the call after a media failure.
func (m *Manager) fail(ctx context.Context, id domain.CallID, cause error) {
	m.mu.Lock()
	if m.call == nil || m.call.ID != id || !domain.CanTransition(m.call.Status, domain.EventFail) {
		m.mu.Unlock()
		return
	}
	_ = m.call.Apply(domain.EventFail, m.deps.Clock.Now())
	conn := m.teardownLocked()
	m.scheduleClearLocked(id)
	done := m.call.Clone()
	ev := m.statusEventLocked()
	m.mu.Unlock()

	conn.release()
	m.record(ctx, done)
	m.publish(ctx, ev)
	m.alert(ctx, id, cause)
}

func (m *Manager) clear(id domain.CallID) {
	m.mu.Lock()
	if m.call == nil || m.call.ID != id {
		m.mu.Unlock()
		return
	}
	if err := m.call.Apply(domain.EventClear, m.deps.Clock.Now()); err != nil {
		m.mu.Unlock()
		return
	}
	m.call = nil
	m.conn = nil
	m.clearTimer = nil
	m.controls = domain.CallControls{}
	m.elapsed = 0
	ev := m.event(domain.EventTypeCleared, id, nil)
	m.mu.Unlock()

	m.logger.Debug().Str("call_id", id.String()).Msg("Call cleared")
	m.publish(context.Background(), ev)
}

func (m *Manager) tick(id domain.CallID) {
	m.mu.Lock()
	if !m.isCurrentLocked(id, domain.StatusConnected) {
		m.mu.Unlock()
		return
	}
	m.elapsed += m.cfg.TickInterval
	ev := m.event(domain.EventTypeDuration, id, domain.DurationData{Seconds: int64(m.elapsed / time.Second)})
	m.mu.Unlock()

	m.publish(context.Background(), ev)
}

func (m *Manager) startTickerLocked(id domain.CallID) {
	m.stopTickerLocked()
	t := m.deps.Clock.Ticker(m.cfg.TickInterval)
	done := make(chan struct{})
	m.ticker = &durationTicker{t: t, done: done}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				m.tick(id)
			}
		}
	}()
}

func (m *Manager) stopTickerLocked() {
	if m.ticker == nil {
		return
	}
	m.ticker.t.Stop()
	close(m.ticker.done)
	m.ticker = nil
}

func (m *Manager) stopTimersLocked() {
	m.stopTickerLocked()
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
	if m.clearTimer != nil {
		m.clearTimer.Stop()
		m.clearTimer = nil
	}
}

// teardownLocked stops timers and resets the live state of the call. The
// returned connection still has to be released after unlocking.
func (m *Manager) teardownLocked() *webrtcConnection {
	m.stopTimersLocked()
	m.elapsed = 0
	m.controls.ScreenSharing = false
	conn := m.conn
	if conn != nil {
		conn.connected = false
	}
	return conn
}

func (m *Manager) scheduleClearLocked(id domain.CallID) {
	if m.clearTimer != nil {
		m.clearTimer.Stop()
	}
	m.clearTimer = m.deps.Clock.AfterFunc(m.cfg.ClearDelay, func() {
		m.clear(id)
	})
}

func (m *Manager) checkIdleLocked() error {
	if m.closed {
		return ErrSessionClosed
	}
	if m.call != nil {
		return fmt.Errorf("%w: call %s is %s", domain.ErrCallActive, m.call.ID, m.call.Status)
	}
	return nil
}

func (m *Manager) checkActiveLocked() error {
	if m.call == nil || !m.call.Status.IsActive() {
		return domain.ErrNoActiveCall
	}
	return nil
}

func (m *Manager) isCurrentLocked(id domain.CallID, status domain.CallStatus) bool {
	return m.call != nil && m.call.ID == id && m.call.Status == status
}

func (m *Manager) statusEventLocked() domain.Event {
	return m.event(domain.EventTypeStatus, m.call.ID, m.call.Clone())
}

func (m *Manager) controlsEventLocked() domain.Event {
	var id domain.CallID
	if m.call != nil {
		id = m.call.ID
	}
	return m.event(domain.EventTypeControls, id, m.controls)
}

func (m *Manager) event(t domain.EventType, id domain.CallID, data any) domain.Event {
	return domain.Event{
		Type:   t,
		UserID: m.self.ID,
		CallID: id,
		At:     m.deps.Clock.Now(),
		Data:   data,
	}
}

func (m *Manager) alert(ctx context.Context, id domain.CallID, cause error) {
	m.publish(ctx, m.event(domain.EventTypeAlert, id, domain.AlertData{Message: cause.Error()}))
}

func (m *Manager) publish(ctx context.Context, evs ...domain.Event) {
	if m.deps.Events == nil {
		return
	}
	for _, ev := range evs {
		if err := m.deps.Events.Publish(ctx, ev); err != nil {
			m.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to publish event")
		}
	}
}

func (m *Manager) record(ctx context.Context, call *domain.Call) {
	if m.deps.History == nil || call == nil {
		return
	}
	if err := m.deps.History.Save(ctx, m.self.ID, *call); err != nil {
		m.logger.Error().Err(err).Str("call_id", call.ID.String()).Msg("Failed to save call history")
	}
}
