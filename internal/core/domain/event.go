package domain

import "time"

type EventType string

const (
	EventTypeStatus   EventType = "call.status"
	EventTypeControls EventType = "call.controls"
	EventTypeDuration EventType = "call.duration"
	EventTypeSignal   EventType = "call.signal"
	EventTypeBusy     EventType = "call.busy"
	EventTypeAlert    EventType = "call.alert"
	EventTypeCleared  EventType = "call.cleared"
)

// Event is what the call session publishes to the user's clients.
type Event struct {
	Type   EventType `json:"type"`
	UserID UserID    `json:"user_id"`
	CallID CallID    `json:"call_id"`
	At     time.Time `json:"at"`
	Data   any       `json:"data,omitempty"`
}

type AlertData struct {
	Message string `json:"message"`
}

type BusyData struct {
	Caller Participant `json:"caller"`
	Type   CallType    `json:"type"`
}

type DurationData struct {
	Seconds int64 `json:"seconds"`
}
