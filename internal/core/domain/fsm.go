package domain

import "fmt"

type CallEvent string

const (
	EventStart    CallEvent = "start"
	EventIncoming CallEvent = "incoming"
	EventConnect  CallEvent = "connect"
	EventAccept   CallEvent = "accept"
	EventDecline  CallEvent = "decline"
	EventEnd      CallEvent = "end"
	EventFail     CallEvent = "fail"
	EventBusy     CallEvent = "busy"
	EventAbort    CallEvent = "abort"
	EventClear    CallEvent = "clear"
)

type transitionKey struct {
	from CallStatus
	ev   CallEvent
}

// transitions is the complete call lifecycle. Anything missing here is illegal.
var transitions = map[transitionKey]CallStatus{
	{StatusIdle, EventStart}:    StatusCalling,
	{StatusIdle, EventIncoming}: StatusRinging,

	{StatusCalling, EventConnect}: StatusConnected,
	{StatusCalling, EventEnd}:     StatusEnded,
	{StatusCalling, EventFail}:    StatusEnded,
	{StatusCalling, EventBusy}:    StatusBusy,
	{StatusCalling, EventAbort}:   StatusIdle,

	{StatusRinging, EventAccept}:  StatusConnected,
	{StatusRinging, EventDecline}: StatusDeclined,
	{StatusRinging, EventFail}:    StatusEnded,

	{StatusConnected, EventEnd}:  StatusEnded,
	{StatusConnected, EventFail}: StatusEnded,

	{StatusEnded, EventClear}:    StatusIdle,
	{StatusDeclined, EventClear}: StatusIdle,
	{StatusBusy, EventClear}:     StatusIdle,
}

func Transition(from CallStatus, ev CallEvent) (CallStatus, error) {
	next, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	return next, nil
}

func CanTransition(from CallStatus, ev CallEvent) bool {
	_, ok := transitions[transitionKey{from, ev}]
	return ok
}
