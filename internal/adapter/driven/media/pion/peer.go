package pion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/Wyydra/nexuscall/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrForeignTrack = errors.New("track was not created by this media engine")

// DefaultICEServers is the public STUN pair. There is no TURN relay.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type ConnectorConfig struct {
	ICEServers    []string
	GatherTimeout time.Duration
}

// Connector builds one peer connection per call.
type Connector struct {
	api *webrtc.API
	cfg ConnectorConfig
}

func NewConnector(cfg ConnectorConfig) (*Connector, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = 500 * time.Millisecond
	}
	return &Connector{
		api: webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		cfg: cfg,
	}, nil
}

func (c *Connector) NewPeerConnection(ctx context.Context, callID domain.CallID) (port.PeerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var servers []webrtc.ICEServer
	if len(c.cfg.ICEServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.cfg.ICEServers})
	}
	pc, err := c.api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, err
	}

	p := &Peer{
		pc:     pc,
		gather: c.cfg.GatherTimeout,
		log:    log.With().Str("call_id", callID.String()).Logger(),
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.log.Debug().Str("state", s.String()).Msg("Peer connection state changed")
	})
	return p, nil
}

type Peer struct {
	pc     *webrtc.PeerConnection
	gather time.Duration
	log    zerolog.Logger
}

func (p *Peer) AddTrack(t port.Track) (port.Sender, error) {
	lt, ok := t.(*Track)
	if !ok {
		return nil, ErrForeignTrack
	}
	rtpSender, err := p.pc.AddTrack(lt.Local())
	if err != nil {
		return nil, err
	}

	s := &sender{rtp: rtpSender, kind: t.Kind(), track: t}

	go p.readRTCP(rtpSender, t.Kind())
	return s, nil
}

// readRTCP drains incoming RTCP so interceptors keep working, and logs
// keyframe requests. It returns once the connection is closed.
func (p *Peer) readRTCP(s *webrtc.RTPSender, kind port.TrackKind) {
	for {
		pkts, _, err := s.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				p.log.Debug().Str("kind", string(kind)).Msg("Keyframe requested")
			}
		}
	}
}

func (p *Peer) CreateOffer(ctx context.Context) (domain.Signal, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.Signal{}, err
	}

	done := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return domain.Signal{}, err
	}

	// Wait briefly for gathering so the offer carries candidates
	gatherCtx, cancel := context.WithTimeout(ctx, p.gather)
	defer cancel()
	select {
	case <-done:
	case <-gatherCtx.Done():
	}

	return domain.NewSignal(domain.SignalOffer, p.pc.LocalDescription().SDP), nil
}

func (p *Peer) OnICECandidate(fn func(domain.Signal)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidateJSON, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.log.Error().Err(err).Msg("Failed to marshal candidate")
			return
		}
		fn(domain.NewSignal(domain.SignalCandidate, string(candidateJSON)))
	})
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

type sender struct {
	rtp  *webrtc.RTPSender
	kind port.TrackKind

	mu    sync.Mutex
	track port.Track
}

func (s *sender) Kind() port.TrackKind {
	return s.kind
}

func (s *sender) Track() port.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

// ReplaceTrack swaps the outgoing source without renegotiation. A nil track
// leaves the sender muted.
func (s *sender) ReplaceTrack(t port.Track) error {
	var local webrtc.TrackLocal
	if t != nil {
		lt, ok := t.(*Track)
		if !ok {
			return ErrForeignTrack
		}
		local = lt.Local()
	}
	if err := s.rtp.ReplaceTrack(local); err != nil {
		return err
	}
	s.mu.Lock()
	s.track = t
	s.mu.Unlock()
	return nil
}
