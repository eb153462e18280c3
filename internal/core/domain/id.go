package domain

import (
	"strings"

	"github.com/google/uuid"
)

// UserID is the opaque identity of a dashboard user. The transport decides
// where it comes from.
type UserID string

func (id UserID) String() string {
	return string(id)
}

func (id UserID) Valid() bool {
	return strings.TrimSpace(string(id)) != ""
}

type CallID uuid.UUID

func NewCallID() CallID {
	return CallID(uuid.New())
}

func ParseCallID(s string) (CallID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return CallID{}, err
	}
	return CallID(id), nil
}

func (id CallID) String() string {
	return uuid.UUID(id).String()
}

func (id CallID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id CallID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *CallID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = CallID(parsed)
	return nil
}
