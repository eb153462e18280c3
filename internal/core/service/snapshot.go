package service

import (
	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/Wyydra/nexuscall/internal/core/port"
)

type Snapshot struct {
	Call            *domain.Call        `json:"call"`
	Controls        domain.CallControls `json:"controls"`
	DurationSeconds int64               `json:"duration_seconds"`
	Connection      ConnectionInfo      `json:"connection"`
}

// Status is idle when no call is held.
func (s Snapshot) Status() domain.CallStatus {
	if s.Call == nil {
		return domain.StatusIdle
	}
	return s.Call.Status
}

type ConnectionInfo struct {
	Connected    bool        `json:"connected"`
	LocalTracks  []TrackInfo `json:"local_tracks,omitempty"`
	ScreenTracks []TrackInfo `json:"screen_tracks,omitempty"`
}

type TrackInfo struct {
	ID         string          `json:"id"`
	Kind       port.TrackKind  `json:"kind"`
	Label      string          `json:"label,omitempty"`
	Enabled    bool            `json:"enabled"`
	ReadyState port.TrackState `json:"ready_state"`
}

func trackInfos(s *port.MediaStream) []TrackInfo {
	if s == nil {
		return nil
	}
	out := make([]TrackInfo, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		out = append(out, TrackInfo{
			ID:         t.ID(),
			Kind:       t.Kind(),
			Label:      t.Label(),
			Enabled:    t.Enabled(),
			ReadyState: t.ReadyState(),
		})
	}
	return out
}
