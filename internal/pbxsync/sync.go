// Package pbxsync drives the periodic pull cycle: extension roster
// first, then the call-log window, advancing the cursor only when the
// whole cycle completes.
package pbxsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pbx-bridge/internal/config"
	"pbx-bridge/internal/event"
	"pbx-bridge/internal/ingest"
	"pbx-bridge/internal/pbx"
)

// ErrAlreadyRunning is returned when a trigger arrives while a cycle
// is still in flight. Cycles never overlap.
var ErrAlreadyRunning = errors.New("sync already running")

// Upstream is the slice of the PBX client the runner needs.
type Upstream interface {
	FetchExtensions(ctx context.Context, page, pageSize int) (map[string]any, error)
	FetchCallLogs(ctx context.Context, startTS, endTS int64, page, pageSize int) (map[string]any, error)
}

type Runner struct {
	cfg      config.SyncConfig
	cc       string
	upstream Upstream
	engine   *ingest.Engine
	db       ingest.DB
	cursor   CursorStore
	now      func() time.Time

	mu sync.Mutex
}

// CursorStore is satisfied by store.CursorStore.
type CursorStore interface {
	Load(ctx context.Context) (time.Time, error)
	Save(ctx context.Context, t time.Time) error
}

func NewRunner(cfg config.SyncConfig, defaultCC string, upstream Upstream, engine *ingest.Engine, db ingest.DB, cursor CursorStore) *Runner {
	return &Runner{
		cfg:      cfg,
		cc:       defaultCC,
		upstream: upstream,
		engine:   engine,
		db:       db,
		cursor:   cursor,
		now:      time.Now,
	}
}

// Run executes one pull cycle. Any upstream or store error aborts the
// cycle without moving the cursor; records upserted before the failure
// stay, since replaying them is idempotent.
func (r *Runner) Run(ctx context.Context) error {
	if !r.mu.TryLock() {
		return ErrAlreadyRunning
	}
	defer r.mu.Unlock()

	start, end, err := r.window(ctx)
	if err != nil {
		return err
	}
	slog.Info("sync cycle started", "from", start, "to", end)

	if r.cfg.SyncExtensions {
		if err := r.syncExtensions(ctx); err != nil {
			return fmt.Errorf("sync extensions: %w", err)
		}
	}

	if err := r.syncCallLogs(ctx, start, end); err != nil {
		return fmt.Errorf("sync call logs: %w", err)
	}

	if err := r.cursor.Save(ctx, end); err != nil {
		return err
	}
	slog.Info("sync cycle completed", "cursor", end)
	return nil
}

// window is [cursor, now]; a fresh deployment starts at the
// configured lookback.
func (r *Runner) window(ctx context.Context) (time.Time, time.Time, error) {
	start, err := r.cursor.Load(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := r.now().UTC()
	if start.IsZero() {
		start = end.Add(-time.Duration(r.cfg.LookbackHours) * time.Hour)
	}
	return start, end, nil
}

func (r *Runner) syncExtensions(ctx context.Context) error {
	return pbx.ForEachPage(ctx, r.cfg.PageSize,
		func(ctx context.Context, page, pageSize int) (map[string]any, error) {
			return r.upstream.FetchExtensions(ctx, page, pageSize)
		},
		func(items []map[string]any) error {
			for _, row := range items {
				if err := ingest.UpsertExtension(ctx, r.db, row); err != nil {
					return err
				}
			}
			return nil
		})
}

func (r *Runner) syncCallLogs(ctx context.Context, start, end time.Time) error {
	return pbx.ForEachPage(ctx, r.cfg.PageSize,
		func(ctx context.Context, page, pageSize int) (map[string]any, error) {
			return r.upstream.FetchCallLogs(ctx, start.Unix(), end.Unix(), page, pageSize)
		},
		func(items []map[string]any) error {
			for _, row := range items {
				ev := event.FromCallLog(row, r.cc)
				if _, err := r.engine.Upsert(ctx, ev); err != nil {
					return err
				}
			}
			return nil
		})
}
