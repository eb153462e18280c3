package port

import (
	"context"

	"github.com/Wyydra/nexuscall/internal/core/domain"
)

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// Track is a local media track. Stop is final: the track turns ended and
// its OnEnded callbacks run once.
type Track interface {
	ID() string
	Kind() TrackKind
	Label() string
	Enabled() bool
	SetEnabled(enabled bool)
	ReadyState() TrackState
	Stop()
	OnEnded(fn func())
}

type MediaStream struct {
	ID     string
	Tracks []Track
}

func (s *MediaStream) AudioTracks() []Track {
	return s.byKind(KindAudio)
}

func (s *MediaStream) VideoTracks() []Track {
	return s.byKind(KindVideo)
}

func (s *MediaStream) byKind(kind TrackKind) []Track {
	if s == nil {
		return nil
	}
	var out []Track
	for _, t := range s.Tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// Stop ends every track of the stream.
func (s *MediaStream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.Tracks {
		t.Stop()
	}
}

type MediaConstraints struct {
	Audio bool
	Video bool
}

type MediaDevices interface {
	GetUserMedia(ctx context.Context, c MediaConstraints) (*MediaStream, error)
	GetDisplayMedia(ctx context.Context) (*MediaStream, error)
}

// Sender is the outgoing side of one transceiver.
type Sender interface {
	Kind() TrackKind
	Track() Track
	ReplaceTrack(t Track) error
}

type PeerConnection interface {
	AddTrack(t Track) (Sender, error)
	CreateOffer(ctx context.Context) (domain.Signal, error)
	OnICECandidate(fn func(domain.Signal))
	Close() error
}

type PeerConnector interface {
	NewPeerConnection(ctx context.Context, callID domain.CallID) (PeerConnection, error)
}
