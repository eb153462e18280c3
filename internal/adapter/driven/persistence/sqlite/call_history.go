package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Wyydra/nexuscall/internal/core/domain"
)

type CallHistoryRepository struct {
	db *DB
}

func NewCallHistoryRepository(db *DB) *CallHistoryRepository {
	return &CallHistoryRepository{db: db}
}

func (r *CallHistoryRepository) Save(ctx context.Context, userID domain.UserID, call domain.Call) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO calls
			(id, user_id, type, status, caller_id, caller_name, receiver_id, receiver_name,
			 incoming, created_at, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID.String(), userID.String(), string(call.Type), string(call.Status),
		call.Caller.ID.String(), call.Caller.Name, call.Receiver.ID.String(), call.Receiver.Name,
		call.Incoming, call.CreatedAt.UnixNano(), nullTime(call.StartedAt), nullTime(call.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("save call %s: %w", call.ID, err)
	}
	return nil
}

// List returns the newest calls first. A non-positive limit returns all of them.
func (r *CallHistoryRepository) List(ctx context.Context, userID domain.UserID, limit int) ([]domain.Call, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, type, status, caller_id, caller_name, receiver_id, receiver_name,
		       incoming, created_at, started_at, ended_at
		FROM calls
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	calls := []domain.Call{}
	for rows.Next() {
		var (
			c                domain.Call
			id               string
			created          int64
			started, ended   sql.NullInt64
			callType, status string
		)
		if err := rows.Scan(&id, &callType, &status,
			&c.Caller.ID, &c.Caller.Name, &c.Receiver.ID, &c.Receiver.Name,
			&c.Incoming, &created, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		if c.ID, err = domain.ParseCallID(id); err != nil {
			return nil, fmt.Errorf("call row %q: %w", id, err)
		}
		c.Type = domain.CallType(callType)
		c.Status = domain.CallStatus(status)
		c.CreatedAt = time.Unix(0, created).UTC()
		c.StartedAt = fromNull(started)
		c.EndedAt = fromNull(ended)
		c.Participants = []domain.Participant{c.Caller, c.Receiver}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
