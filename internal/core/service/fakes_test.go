package service

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/Wyydra/nexuscall/internal/core/port"
	"github.com/google/uuid"
)

type fakeTrack struct {
	id   string
	kind port.TrackKind

	mu      sync.Mutex
	enabled bool
	state   port.TrackState
	onEnded []func()
}

func newFakeTrack(kind port.TrackKind) *fakeTrack {
	return &fakeTrack{id: uuid.NewString(), kind: kind, enabled: true, state: port.TrackLive}
}

func (t *fakeTrack) ID() string           { return t.id }
func (t *fakeTrack) Kind() port.TrackKind { return t.kind }
func (t *fakeTrack) Label() string        { return "fake " + string(t.kind) }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(e bool) {
	t.mu.Lock()
	t.enabled = e
	t.mu.Unlock()
}

func (t *fakeTrack) ReadyState() port.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *fakeTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	if t.state == port.TrackEnded {
		t.mu.Unlock()
		return
	}
	t.state = port.TrackEnded
	cbs := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

type fakeDevices struct {
	// When gate is set, GetUserMedia signals entered and waits on gate.
	gate    chan struct{}
	entered chan struct{}

	mu         sync.Mutex
	userErr    error
	displayErr error
	user       []*port.MediaStream
	display    []*port.MediaStream
}

func (d *fakeDevices) GetUserMedia(_ context.Context, c port.MediaConstraints) (*port.MediaStream, error) {
	if d.gate != nil {
		d.entered <- struct{}{}
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.userErr != nil {
		return nil, d.userErr
	}
	s := &port.MediaStream{ID: uuid.NewString()}
	if c.Audio {
		s.Tracks = append(s.Tracks, newFakeTrack(port.KindAudio))
	}
	if c.Video {
		s.Tracks = append(s.Tracks, newFakeTrack(port.KindVideo))
	}
	d.user = append(d.user, s)
	return s, nil
}

func (d *fakeDevices) GetDisplayMedia(context.Context) (*port.MediaStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.displayErr != nil {
		return nil, d.displayErr
	}
	s := &port.MediaStream{ID: uuid.NewString(), Tracks: []port.Track{newFakeTrack(port.KindVideo)}}
	d.display = append(d.display, s)
	return s, nil
}

func (d *fakeDevices) lastUser() *port.MediaStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.user[len(d.user)-1]
}

func (d *fakeDevices) lastDisplay() *port.MediaStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.display[len(d.display)-1]
}

type fakeSender struct {
	mu    sync.Mutex
	kind  port.TrackKind
	track port.Track
}

func (s *fakeSender) Kind() port.TrackKind { return s.kind }

func (s *fakeSender) Track() port.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *fakeSender) ReplaceTrack(t port.Track) error {
	s.mu.Lock()
	s.track = t
	s.mu.Unlock()
	return nil
}

type fakePeer struct {
	mu      sync.Mutex
	senders []*fakeSender
	closed  bool
}

func (p *fakePeer) AddTrack(t port.Track) (port.Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("peer closed")
	}
	s := &fakeSender{kind: t.Kind(), track: t}
	p.senders = append(p.senders, s)
	return s, nil
}

func (p *fakePeer) CreateOffer(context.Context) (domain.Signal, error) {
	return domain.NewSignal(domain.SignalOffer, "v=0"), nil
}

func (p *fakePeer) OnICECandidate(func(domain.Signal)) {}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) videoSender() *fakeSender {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.senders {
		if s.kind == port.KindVideo {
			return s
		}
	}
	return nil
}

type fakeConnector struct {
	mu    sync.Mutex
	err   error
	peers []*fakePeer
}

func (c *fakeConnector) NewPeerConnection(context.Context, domain.CallID) (port.PeerConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	p := &fakePeer{}
	c.peers = append(c.peers, p)
	return p, nil
}

func (c *fakeConnector) last() *fakePeer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peers[len(c.peers)-1]
}

func (c *fakeConnector) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.peers {
		if !p.isClosed() {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) ofType(t domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type recordingHistory struct {
	mu    sync.Mutex
	calls []domain.Call
}

func (h *recordingHistory) Save(_ context.Context, _ domain.UserID, call domain.Call) error {
	h.mu.Lock()
	h.calls = append(h.calls, call)
	h.mu.Unlock()
	return nil
}

func (h *recordingHistory) List(context.Context, domain.UserID, int) ([]domain.Call, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Call(nil), h.calls...), nil
}

func (h *recordingHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}
