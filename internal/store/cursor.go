package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// CursorStore persists the sync cursor: the end of the last fully
// completed pull window. It only moves after a clean cycle, so a
// failed run retries the same window next time.
type CursorStore struct {
	db DB
}

func NewCursorStore(db DB) *CursorStore {
	return &CursorStore{db: db}
}

// Load returns the zero time when no cycle has completed yet.
func (s *CursorStore) Load(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(ctx,
		`SELECT last_synced_at FROM pbx.sync_state WHERE id = 1`).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("load sync cursor: %w", err)
	}
	return t, nil
}

func (s *CursorStore) Save(ctx context.Context, t time.Time) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO pbx.sync_state (id, last_synced_at)
        VALUES (1, $1)
        ON CONFLICT (id) DO UPDATE SET last_synced_at = EXCLUDED.last_synced_at
    `, t)
	if err != nil {
		return fmt.Errorf("save sync cursor: %w", err)
	}
	return nil
}
