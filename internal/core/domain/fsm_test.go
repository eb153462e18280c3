package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from CallStatus
		ev   CallEvent
		want CallStatus
	}{
		{StatusIdle, EventStart, StatusCalling},
		{StatusIdle, EventIncoming, StatusRinging},
		{StatusCalling, EventConnect, StatusConnected},
		{StatusCalling, EventEnd, StatusEnded},
		{StatusCalling, EventBusy, StatusBusy},
		{StatusCalling, EventAbort, StatusIdle},
		{StatusRinging, EventAccept, StatusConnected},
		{StatusRinging, EventDecline, StatusDeclined},
		{StatusRinging, EventFail, StatusEnded},
		{StatusConnected, EventEnd, StatusEnded},
		{StatusEnded, EventClear, StatusIdle},
		{StatusDeclined, EventClear, StatusIdle},
		{StatusBusy, EventClear, StatusIdle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIllegalTransitionsKeepState(t *testing.T) {
	tests := []struct {
		from CallStatus
		ev   CallEvent
	}{
		{StatusIdle, EventEnd},
		{StatusIdle, EventAccept},
		{StatusCalling, EventStart},
		{StatusCalling, EventDecline},
		{StatusCalling, EventAccept},
		{StatusRinging, EventEnd},
		{StatusRinging, EventConnect},
		{StatusConnected, EventDecline},
		{StatusConnected, EventClear},
		{StatusEnded, EventEnd},
		{StatusDeclined, EventDecline},
	}
	for _, tt := range tests {
		got, err := Transition(tt.from, tt.ev)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", tt.ev, tt.from)
		assert.Equal(t, tt.from, got)
		assert.False(t, CanTransition(tt.from, tt.ev))
	}
}

func TestTerminalStatusesOnlyClear(t *testing.T) {
	events := []CallEvent{EventStart, EventIncoming, EventConnect, EventAccept, EventDecline, EventEnd, EventFail, EventBusy, EventAbort}
	for _, s := range []CallStatus{StatusEnded, StatusDeclined, StatusBusy} {
		assert.True(t, s.IsTerminal())
		assert.False(t, s.IsActive())
		for _, ev := range events {
			assert.False(t, CanTransition(s, ev), "%s on %s", ev, s)
		}
	}
}
