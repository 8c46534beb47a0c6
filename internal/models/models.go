package models

import "time"

// Direction of a call as reported by the PBX.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionUnknown  Direction = "unknown"
)

// CallEvent is the canonical representation of one logical call,
// independent of whether it arrived via webhook push or pull sync.
// call_id uniquely identifies the call across both channels.
type CallEvent struct {
	ID           int64     `db:"id" json:"id"`
	CallID       string    `db:"call_id" json:"call_id"`
	Direction    string    `db:"direction" json:"direction"`
	Status       string    `db:"status" json:"status"`
	FromNumber   string    `db:"from_number" json:"from_number"`
	ToNumber     string    `db:"to_number" json:"to_number"`
	Extension    string    `db:"extension" json:"extension"`
	StartTime    string    `db:"start_time" json:"start_time,omitempty"`
	EndTime      string    `db:"end_time" json:"end_time,omitempty"`
	Duration     *int      `db:"duration" json:"duration,omitempty"`
	RecordingURL string    `db:"recording_url" json:"recording_url,omitempty"`
	AgentUser    *string   `db:"agent_user" json:"agent_user,omitempty"`
	LinkedKind   *string   `db:"linked_kind" json:"linked_kind,omitempty"`
	LinkedID     *string   `db:"linked_id" json:"linked_id,omitempty"`
	RawPayload   []byte    `db:"raw_payload" json:"-"`
	LastEventAt  time.Time `db:"last_event_at" json:"last_event_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AgentExtension maps a PBX line to a display name and, optionally,
// a platform user. Created on first sighting, never deleted here.
type AgentExtension struct {
	ID          int64     `db:"id" json:"id"`
	Extension   string    `db:"extension" json:"extension"`
	DisplayName string    `db:"display_name" json:"display_name"`
	UserID      *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Credential is the persisted upstream API credential. It is replaced
// wholesale on every refresh; the store only keeps the latest value so
// tokens survive process restarts.
type Credential struct {
	AccessToken      string    `db:"access_token"`
	RefreshToken     string    `db:"refresh_token"`
	ExpiresAt        time.Time `db:"expires_at"`
	RefreshExpiresAt time.Time `db:"refresh_expires_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// SyncCursor marks the end of the last fully completed pull window.
type SyncCursor struct {
	LastSyncedAt time.Time `db:"last_synced_at"`
}

// PartyRef points at an external party (contact or lead) matched by
// phone number.
type PartyRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}
