package service

import (
	"context"
	"testing"
	"time"

	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestSessions() *Sessions {
	return newTestSessionsWithClock(clock.NewMock())
}

func newTestSessionsWithClock(c clock.Clock) *Sessions {
	return NewSessions(Dependencies{
		Devices: &fakeDevices{},
		Peers:   &fakeConnector{},
		Clock:   c,
	}, DefaultConfig())
}

func (s *Sessions) has(id domain.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

func TestSessionsGetReturnsSameManager(t *testing.T) {
	s := newTestSessions()
	defer s.Close()

	a, err := s.Get(domain.Participant{ID: "alice"})
	require.NoError(t, err)
	b, err := s.Get(domain.Participant{ID: "alice", Name: "ignored"})
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := s.Get(domain.Participant{ID: "bob"})
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	_, err = s.Get(domain.Participant{})
	assert.ErrorIs(t, err, domain.ErrInvalidParticipant)
}

func TestSessionsKeepCallsApart(t *testing.T) {
	s := newTestSessions()
	defer s.Close()
	ctx := context.Background()

	alice, _ := s.Get(domain.Participant{ID: "alice"})
	bob, _ := s.Get(domain.Participant{ID: "bob"})

	_, err := alice.StartCall(ctx, john, domain.CallTypeVoice)
	require.NoError(t, err)
	_, err = bob.StartCall(ctx, john, domain.CallTypeVoice)
	require.NoError(t, err)
}

func TestSessionsDetachLastSocketReleasesIdleSession(t *testing.T) {
	s := newTestSessions()
	defer s.Close()
	alice := domain.Participant{ID: "alice"}

	first, err := s.Attach(alice)
	require.NoError(t, err)
	second, err := s.Attach(alice)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Len())

	s.Detach("alice")
	assert.True(t, s.has("alice"))

	s.Detach("alice")
	assert.False(t, s.has("alice"))
	assert.Zero(t, s.Len())
	_, err = first.StartCall(context.Background(), john, domain.CallTypeVoice)
	assert.ErrorIs(t, err, ErrSessionClosed)

	again, err := s.Get(alice)
	require.NoError(t, err)
	assert.NotSame(t, first, again)
}

func TestSessionsDetachKeepsSessionWithCall(t *testing.T) {
	s := newTestSessions()
	defer s.Close()

	m, err := s.Attach(domain.Participant{ID: "alice"})
	require.NoError(t, err)
	_, err = m.StartCall(context.Background(), john, domain.CallTypeVoice)
	require.NoError(t, err)

	s.Detach("alice")
	assert.True(t, s.has("alice"))
	assert.Equal(t, domain.StatusCalling, m.Snapshot().Status())
}

func TestSessionsReapDropsUnusedIdleSessions(t *testing.T) {
	mock := clock.NewMock()
	s := newTestSessionsWithClock(mock)
	defer s.Close()
	ctx := context.Background()

	_, err := s.Get(domain.Participant{ID: "alice"})
	require.NoError(t, err)
	bob, err := s.Get(domain.Participant{ID: "bob"})
	require.NoError(t, err)
	_, err = bob.StartCall(ctx, john, domain.CallTypeVoice)
	require.NoError(t, err)
	_, err = s.Attach(domain.Participant{ID: "carol"})
	require.NoError(t, err)

	mock.Add(DefaultConfig().SessionIdleTimeout - time.Second)
	assert.Zero(t, s.Reap())

	mock.Add(time.Second)
	assert.Equal(t, 1, s.Reap())
	assert.False(t, s.has("alice"))
	assert.True(t, s.has("bob"))
	assert.True(t, s.has("carol"))
}

func TestSessionsRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestSessionsWithClock(clock.NewMock())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}

func TestSessionsClosedRefusesNewSessions(t *testing.T) {
	s := newTestSessions()
	s.Close()

	_, err := s.Get(domain.Participant{ID: "alice"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}
