package port

import (
	"context"

	"github.com/Wyydra/nexuscall/internal/core/domain"
)

// CallHistoryRepository keeps finished calls per user.
type CallHistoryRepository interface {
	Save(ctx context.Context, userID domain.UserID, call domain.Call) error
	List(ctx context.Context, userID domain.UserID, limit int) ([]domain.Call, error)
}
