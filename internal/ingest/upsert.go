package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pbx-bridge/internal/models"
)

// DB is the minimal interface needed from a pgx pool. Kept small so
// tests can substitute pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrInvalidEvent is returned when an event lacks the minimum needed
// to persist it.
var ErrInvalidEvent = errors.New("invalid call event")

// PartyDirectory resolves external phone numbers to contacts/leads.
type PartyDirectory interface {
	FindByPhone(ctx context.Context, phone string) (*models.PartyRef, error)
	CreateLead(ctx context.Context, phone string) (*models.PartyRef, error)
}

// Options are the persistence policy toggles.
type Options struct {
	IgnoreInternalCalls bool
	AutoLink            bool
	CreateLead          bool
	DefaultCountryCode  string
}

// Result reports the outcome of one upsert.
type Result struct {
	ID      int64
	Skipped bool
}

// Engine reconciles normalized call events into the store. Both the
// webhook handler and the pull sync funnel through it; convergence
// under at-least-once, any-order delivery rests entirely on the single
// conditional update below.
type Engine struct {
	db      DB
	parties PartyDirectory
	opts    Options
}

func NewEngine(db DB, parties PartyDirectory, opts Options) *Engine {
	return &Engine{db: db, parties: parties, opts: opts}
}

// upsertEventSQL merges an incoming event into an existing row in one
// statement. status, raw_payload and last_event_at are always fresh;
// every other field fills only when the stored value is empty (zero
// for duration, a ringing event has no talk time yet), so a
// late enrichment (recording-ready, hangup status) never erases known
// good values and replays are idempotent.
const upsertEventSQL = `
    INSERT INTO pbx.call_events AS ce (
        call_id, direction, status, from_number, to_number, extension,
        start_time, end_time, duration, recording_url,
        agent_user, linked_kind, linked_id, raw_payload, last_event_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
    )
    ON CONFLICT (call_id) DO UPDATE SET
        status        = EXCLUDED.status,
        raw_payload   = EXCLUDED.raw_payload,
        last_event_at = EXCLUDED.last_event_at,
        direction     = COALESCE(NULLIF(ce.direction, ''), EXCLUDED.direction),
        from_number   = COALESCE(NULLIF(ce.from_number, ''), EXCLUDED.from_number),
        to_number     = COALESCE(NULLIF(ce.to_number, ''), EXCLUDED.to_number),
        extension     = COALESCE(NULLIF(ce.extension, ''), EXCLUDED.extension),
        start_time    = COALESCE(NULLIF(ce.start_time, ''), EXCLUDED.start_time),
        end_time      = COALESCE(NULLIF(ce.end_time, ''), EXCLUDED.end_time),
        duration      = COALESCE(NULLIF(ce.duration, 0), EXCLUDED.duration),
        recording_url = COALESCE(NULLIF(ce.recording_url, ''), EXCLUDED.recording_url),
        agent_user    = COALESCE(ce.agent_user, EXCLUDED.agent_user),
        linked_kind   = COALESCE(ce.linked_kind, EXCLUDED.linked_kind),
        linked_id     = COALESCE(ce.linked_id, EXCLUDED.linked_id)
    RETURNING id
`

// Upsert persists one canonical event, merging it into any existing
// record for the same call_id.
func (e *Engine) Upsert(ctx context.Context, ev models.CallEvent) (Result, error) {
	if strings.TrimSpace(ev.CallID) == "" {
		return Result{}, fmt.Errorf("%w: missing call_id", ErrInvalidEvent)
	}

	if e.opts.IgnoreInternalCalls &&
		e.isInternal(ev.FromNumber) && e.isInternal(ev.ToNumber) {
		slog.Info("skipping internal call", "call_id", ev.CallID,
			"from", ev.FromNumber, "to", ev.ToNumber)
		return Result{Skipped: true}, nil
	}

	if ev.AgentUser == nil && ev.Extension != "" {
		ev.AgentUser = e.agentUser(ctx, ev.Extension)
	}

	if e.opts.AutoLink && e.parties != nil {
		ref, err := e.linkParty(ctx, ev)
		if err != nil {
			slog.Warn("party linking failed", "call_id", ev.CallID, "error", err)
		} else if ref != nil {
			ev.LinkedKind = &ref.Kind
			ev.LinkedID = &ref.ID
		}
	}

	var id int64
	err := e.db.QueryRow(ctx, upsertEventSQL,
		ev.CallID,
		ev.Direction,
		ev.Status,
		ev.FromNumber,
		ev.ToNumber,
		ev.Extension,
		ev.StartTime,
		ev.EndTime,
		ev.Duration,
		ev.RecordingURL,
		ev.AgentUser,
		ev.LinkedKind,
		ev.LinkedID,
		ev.RawPayload,
		ev.LastEventAt,
	).Scan(&id)
	if err != nil {
		return Result{}, fmt.Errorf("upsert call event: %w", err)
	}

	slog.Info("upserted call event", "call_id", ev.CallID, "id", id,
		"direction", ev.Direction, "status", ev.Status)
	return Result{ID: id}, nil
}

// isInternal reports whether a normalized number is a PBX-internal
// extension: digits only, 2 to 6 long, once the default country code
// that normalization prepends is peeled off.
func (e *Engine) isInternal(number string) bool {
	n := number
	cc := e.opts.DefaultCountryCode
	if cc != "" && strings.HasPrefix(n, cc) {
		n = n[len(cc):]
	}
	n = strings.TrimPrefix(n, "+")
	if len(n) < 2 || len(n) > 6 {
		return false
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// linkParty resolves the customer-facing number to a contact or lead.
// On inbound calls the customer is the caller; otherwise the callee.
func (e *Engine) linkParty(ctx context.Context, ev models.CallEvent) (*models.PartyRef, error) {
	var phone string
	switch ev.Direction {
	case "inbound", "incoming", "in":
		phone = ev.FromNumber
	default:
		phone = ev.ToNumber
	}
	if phone == "" {
		return nil, nil
	}

	ref, err := e.parties.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		return ref, nil
	}
	if !e.opts.CreateLead {
		return nil, nil
	}
	return e.parties.CreateLead(ctx, phone)
}

func (e *Engine) agentUser(ctx context.Context, extension string) *string {
	var user *string
	err := e.db.QueryRow(ctx,
		`SELECT user_id FROM pbx.agent_extensions WHERE extension = $1`,
		extension).Scan(&user)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			slog.Warn("agent lookup failed", "extension", extension, "error", err)
		}
		return nil
	}
	return user
}
