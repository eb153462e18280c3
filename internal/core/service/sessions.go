package service

import (
	"context"
	"sync"
	"time"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

type session struct {
	m        *Manager
	sockets  int
	lastUsed time.Time
}

// Sessions hands out one Manager per user, created on first use. A session
// is dropped once it holds no call and no socket: right away when the last
// socket detaches, or by Reap after the idle timeout for REST-only users.
type Sessions struct {
	deps Dependencies
	cfg  Config

	mu       sync.Mutex
	sessions map[domain.UserID]*session
	closed   bool
}

func NewSessions(deps Dependencies, cfg Config) *Sessions {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Sessions{
		deps:     deps,
		cfg:      cfg,
		sessions: make(map[domain.UserID]*session),
	}
}

func (s *Sessions) Get(self domain.Participant) (*Manager, error) {
	return s.get(self, 0)
}

// Attach is Get for a long-lived socket. Every Attach must be paired with a
// Detach.
func (s *Sessions) Attach(self domain.Participant) (*Manager, error) {
	return s.get(self, 1)
}

func (s *Sessions) get(self domain.Participant, sockets int) (*Manager, error) {
	if err := self.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	sess, ok := s.sessions[self.ID]
	if !ok {
		sess = &session{m: NewManager(self, s.deps, s.cfg)}
		s.sessions[self.ID] = sess
		log.Debug().Str("user_id", self.ID.String()).Int("count", len(s.sessions)).Msg("Call session created")
	}
	sess.sockets += sockets
	sess.lastUsed = s.deps.Clock.Now()
	return sess.m, nil
}

// Detach releases a socket taken with Attach. The session goes away when it
// was the last socket and no call is held.
func (s *Sessions) Detach(id domain.UserID) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if sess.sockets > 0 {
		sess.sockets--
	}
	sess.lastUsed = s.deps.Clock.Now()
	drop := sess.sockets == 0 && sess.m.Idle()
	if drop {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if drop {
		sess.m.Close()
		log.Debug().Str("user_id", id.String()).Msg("Call session released")
	}
}

// Reap drops sessions without sockets or call that were not used for the
// idle timeout. It returns how many were dropped.
func (s *Sessions) Reap() int {
	now := s.deps.Clock.Now()

	s.mu.Lock()
	var stale []*session
	for id, sess := range s.sessions {
		if sess.sockets == 0 && now.Sub(sess.lastUsed) >= s.cfg.SessionIdleTimeout && sess.m.Idle() {
			delete(s.sessions, id)
			stale = append(stale, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.m.Close()
	}
	if len(stale) > 0 {
		log.Debug().Int("count", len(stale)).Msg("Idle call sessions reaped")
	}
	return len(stale)
}

// Run reaps idle sessions until ctx is done. A non-positive idle timeout
// disables it.
func (s *Sessions) Run(ctx context.Context) {
	if s.cfg.SessionIdleTimeout <= 0 {
		<-ctx.Done()
		return
	}
	t := s.deps.Clock.Ticker(s.cfg.SessionIdleTimeout / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Reap()
		}
	}
}

// Len is the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[domain.UserID]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.m.Close()
	}
	log.Info().Int("count", len(sessions)).Msg("Call sessions closed")
}
