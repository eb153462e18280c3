package pion

import (
	"context"
	"fmt"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/Wyydra/nexuscall/internal/core/port"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DeviceConfig says which capture sources exist on this host.
type DeviceConfig struct {
	Audio   bool
	Video   bool
	Display bool
}

// Devices hands out synthetic capture tracks. The tracks negotiate like real
// ones but no samples are ever written to them.
type Devices struct {
	cfg DeviceConfig
}

func NewDevices(cfg DeviceConfig) *Devices {
	return &Devices{cfg: cfg}
}

func (d *Devices) GetUserMedia(ctx context.Context, c port.MediaConstraints) (*port.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: audio or video must be requested", domain.ErrBadRequest)
	}
	if c.Audio && !d.cfg.Audio {
		return nil, fmt.Errorf("%w: no microphone", domain.ErrMediaUnavailable)
	}
	if c.Video && !d.cfg.Video {
		return nil, fmt.Errorf("%w: no camera", domain.ErrMediaUnavailable)
	}

	stream := &port.MediaStream{ID: uuid.NewString()}
	if c.Audio {
		t, err := newTrack(port.KindAudio, "microphone", uuid.NewString(), stream.ID)
		if err != nil {
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, t)
	}
	if c.Video {
		t, err := newTrack(port.KindVideo, "camera", uuid.NewString(), stream.ID)
		if err != nil {
			stream.Stop()
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, t)
	}

	log.Debug().Str("stream_id", stream.ID).Int("tracks", len(stream.Tracks)).Msg("User media acquired")
	return stream, nil
}

func (d *Devices) GetDisplayMedia(ctx context.Context) (*port.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.cfg.Display {
		return nil, fmt.Errorf("%w: no display capture", domain.ErrMediaUnavailable)
	}

	stream := &port.MediaStream{ID: uuid.NewString()}
	t, err := newTrack(port.KindVideo, "screen", uuid.NewString(), stream.ID)
	if err != nil {
		return nil, err
	}
	stream.Tracks = append(stream.Tracks, t)

	log.Debug().Str("stream_id", stream.ID).Msg("Display media acquired")
	return stream, nil
}
