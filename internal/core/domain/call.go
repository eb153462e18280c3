package domain

import (
	"fmt"
	"time"
)

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func ParseCallType(s string) (CallType, error) {
	switch t := CallType(s); t {
	case CallTypeVoice, CallTypeVideo:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCallType, s)
}

type CallStatus string

const (
	StatusIdle      CallStatus = "idle"
	StatusCalling   CallStatus = "calling"
	StatusRinging   CallStatus = "ringing"
	StatusConnected CallStatus = "connected"
	StatusEnded     CallStatus = "ended"
	StatusDeclined  CallStatus = "declined"
	StatusBusy      CallStatus = "busy"
)

// IsTerminal reports whether the call is over and only waits to be cleared.
func (s CallStatus) IsTerminal() bool {
	return s == StatusEnded || s == StatusDeclined || s == StatusBusy
}

func (s CallStatus) IsActive() bool {
	return s == StatusCalling || s == StatusRinging || s == StatusConnected
}

type Participant struct {
	ID   UserID `json:"id"`
	Name string `json:"name,omitempty"`
}

func (p Participant) Validate() error {
	if !p.ID.Valid() {
		return fmt.Errorf("%w: participant id is required", ErrInvalidParticipant)
	}
	return nil
}

type Call struct {
	ID           CallID        `json:"id"`
	Type         CallType      `json:"type"`
	Status       CallStatus    `json:"status"`
	Caller       Participant   `json:"caller"`
	Receiver     Participant   `json:"receiver"`
	Participants []Participant `json:"participants"`
	Incoming     bool          `json:"incoming"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
}

// NewOutgoingCall builds a call placed by self towards receiver.
func NewOutgoingCall(self, receiver Participant, t CallType, now time.Time) (*Call, error) {
	return newCall(self, receiver, t, false, now)
}

// NewIncomingCall builds a call offered by caller to self.
func NewIncomingCall(caller, self Participant, t CallType, now time.Time) (*Call, error) {
	return newCall(caller, self, t, true, now)
}

func newCall(caller, receiver Participant, t CallType, incoming bool, now time.Time) (*Call, error) {
	if _, err := ParseCallType(string(t)); err != nil {
		return nil, err
	}
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if err := receiver.Validate(); err != nil {
		return nil, err
	}
	if caller.ID == receiver.ID {
		return nil, fmt.Errorf("%w: cannot call yourself", ErrInvalidParticipant)
	}
	return &Call{
		ID:           NewCallID(),
		Type:         t,
		Status:       StatusIdle,
		Caller:       caller,
		Receiver:     receiver,
		Participants: []Participant{caller, receiver},
		Incoming:     incoming,
		CreatedAt:    now,
	}, nil
}

// Apply moves the call through the transition table and stamps the
// start/end times.
func (c *Call) Apply(ev CallEvent, now time.Time) error {
	next, err := Transition(c.Status, ev)
	if err != nil {
		return err
	}
	c.Status = next
	switch {
	case next == StatusConnected:
		t := now
		c.StartedAt = &t
	case next.IsTerminal():
		t := now
		c.EndedAt = &t
	}
	return nil
}

// Duration is the connected time of a finished or running call.
func (c *Call) Duration(now time.Time) time.Duration {
	if c.StartedAt == nil {
		return 0
	}
	end := now
	if c.EndedAt != nil {
		end = *c.EndedAt
	}
	return end.Sub(*c.StartedAt)
}

// Peer returns the other side of the call as seen by self.
func (c *Call) Peer() Participant {
	if c.Incoming {
		return c.Caller
	}
	return c.Receiver
}

func (c *Call) Clone() *Call {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Participants = append([]Participant(nil), c.Participants...)
	if c.StartedAt != nil {
		t := *c.StartedAt
		cp.StartedAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

type CallControls struct {
	Muted         bool `json:"muted"`
	VideoEnabled  bool `json:"video_enabled"`
	ScreenSharing bool `json:"screen_sharing"`
	Recording     bool `json:"recording"`
}
