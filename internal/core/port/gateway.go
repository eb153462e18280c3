package port

import (
	"context"

	"github.com/Wyydra/nexuscall/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
