package domain

import "errors"

var (
	ErrCallActive         = errors.New("a call is already active")
	ErrNoActiveCall       = errors.New("no active call")
	ErrInvalidTransition  = errors.New("invalid call transition")
	ErrInvalidCallType    = errors.New("invalid call type")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrMediaUnavailable   = errors.New("media unavailable")
	ErrNotFound           = errors.New("not found")
	ErrBadRequest         = errors.New("bad request")
)
