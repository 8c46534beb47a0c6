package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pbx-bridge/internal/models"
)

// DB is the minimal pool surface the store needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialStore persists the single upstream credential row so
// tokens survive process restarts. The row is replaced wholesale on
// every save, never partially mutated.
type CredentialStore struct {
	db DB
}

func NewCredentialStore(db DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) Load(ctx context.Context) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.QueryRow(ctx, `
        SELECT access_token, refresh_token, expires_at, refresh_expires_at, updated_at
        FROM pbx.api_credentials WHERE id = 1
    `).Scan(&cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt,
		&cred.RefreshExpiresAt, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &cred, nil
}

func (s *CredentialStore) Save(ctx context.Context, cred *models.Credential) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO pbx.api_credentials (
            id, access_token, refresh_token, expires_at, refresh_expires_at, updated_at
        ) VALUES (1, $1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            access_token       = EXCLUDED.access_token,
            refresh_token      = EXCLUDED.refresh_token,
            expires_at         = EXCLUDED.expires_at,
            refresh_expires_at = EXCLUDED.refresh_expires_at,
            updated_at         = EXCLUDED.updated_at
    `, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt,
		cred.RefreshExpiresAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
