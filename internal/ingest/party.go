package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pbx-bridge/internal/models"
)

// SQLPartyDirectory resolves parties against the platform's contact
// and lead tables. Contacts win over leads; lookups match either the
// mobile or the landline column.
type SQLPartyDirectory struct {
	db DB
}

func NewSQLPartyDirectory(db DB) *SQLPartyDirectory {
	return &SQLPartyDirectory{db: db}
}

func (d *SQLPartyDirectory) FindByPhone(ctx context.Context, phone string) (*models.PartyRef, error) {
	if phone == "" {
		return nil, nil
	}

	var id string
	err := d.db.QueryRow(ctx, `
        SELECT id FROM pbx.contacts
        WHERE mobile_no = $1 OR phone = $1
        LIMIT 1
    `, phone).Scan(&id)
	if err == nil {
		return &models.PartyRef{Kind: "contact", ID: id}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup contact: %w", err)
	}

	err = d.db.QueryRow(ctx, `
        SELECT id FROM pbx.leads
        WHERE mobile_no = $1 OR phone = $1
        LIMIT 1
    `, phone).Scan(&id)
	if err == nil {
		return &models.PartyRef{Kind: "lead", ID: id}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup lead: %w", err)
	}
	return nil, nil
}

// CreateLead inserts a minimal lead keyed by the phone number. The
// display name starts as the number itself until someone fills it in.
func (d *SQLPartyDirectory) CreateLead(ctx context.Context, phone string) (*models.PartyRef, error) {
	id := uuid.NewString()
	_, err := d.db.Exec(ctx, `
        INSERT INTO pbx.leads (id, lead_name, mobile_no, source)
        VALUES ($1, $2, $2, 'Phone Call')
        ON CONFLICT (mobile_no) DO NOTHING
    `, id, phone)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}

	// Another writer may have won the race; read back the stored id.
	var stored string
	if err := d.db.QueryRow(ctx,
		`SELECT id FROM pbx.leads WHERE mobile_no = $1`, phone).Scan(&stored); err != nil {
		return nil, fmt.Errorf("read lead: %w", err)
	}
	return &models.PartyRef{Kind: "lead", ID: stored}, nil
}
