package pion

import (
	"sync"

	"github.com/Wyydra/nexuscall/internal/core/port"
	"github.com/pion/webrtc/v4"
)

// Track is a local sample track with the enabled/readyState semantics of a
// browser MediaStreamTrack.
type Track struct {
	local *webrtc.TrackLocalStaticSample
	kind  port.TrackKind
	label string

	mu      sync.Mutex
	enabled bool
	state   port.TrackState
	onEnded []func()
}

func newTrack(kind port.TrackKind, label, id, streamID string) (*Track, error) {
	mime := webrtc.MimeTypeOpus
	if kind == port.KindVideo {
		mime = webrtc.MimeTypeVP8
	}
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, streamID)
	if err != nil {
		return nil, err
	}
	return &Track{
		local:   local,
		kind:    kind,
		label:   label,
		enabled: true,
		state:   port.TrackLive,
	}, nil
}

func (t *Track) ID() string {
	return t.local.ID()
}

func (t *Track) Kind() port.TrackKind {
	return t.kind
}

func (t *Track) Label() string {
	return t.label
}

func (t *Track) Local() webrtc.TrackLocal {
	return t.local
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *Track) ReadyState() port.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = append(t.onEnded, fn)
}

func (t *Track) Stop() {
	t.mu.Lock()
	if t.state == port.TrackEnded {
		t.mu.Unlock()
		return
	}
	t.state = port.TrackEnded
	callbacks := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
