package ws

import "github.com/Wyydra/nexuscall/internal/core/domain"

// Client is one socket of a user. The hub calls SendEvent from its run loop,
// so it must not block; an error makes the hub drop the client.
type Client interface {
	ID() string
	UserID() domain.UserID
	SendEvent(ev domain.Event) error
	Close() error
}
