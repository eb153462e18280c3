package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/Wyydra/nexuscall/internal/core/domain"
)

// CallHistoryRepository keeps each user's calls sorted by creation time,
// oldest first. Calls created at the same instant stay in save order.
type CallHistoryRepository struct {
	mu    sync.Mutex
	calls map[domain.UserID][]domain.Call
}

func NewCallHistoryRepository() *CallHistoryRepository {
	return &CallHistoryRepository{
		calls: make(map[domain.UserID][]domain.Call),
	}
}

func (r *CallHistoryRepository) Save(ctx context.Context, userID domain.UserID, call domain.Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	saved := slices.DeleteFunc(r.calls[userID], func(c domain.Call) bool { return c.ID == call.ID })
	i := sort.Search(len(saved), func(i int) bool { return saved[i].CreatedAt.After(call.CreatedAt) })
	r.calls[userID] = slices.Insert(saved, i, *call.Clone())
	return nil
}

// List returns the most recently created calls first. A non-positive limit returns all of them.
func (r *CallHistoryRepository) List(ctx context.Context, userID domain.UserID, limit int) ([]domain.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	saved := r.calls[userID]
	n := len(saved)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Call, 0, n)
	for i := len(saved) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *saved[i].Clone())
	}
	return out, nil
}
