package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"pbx-bridge/internal/models"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestCredentialLoadReturnsNilWhenEmpty(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery(`SELECT access_token`).WillReturnError(pgx.ErrNoRows)

	cred, err := NewCredentialStore(mock).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cred != nil {
		t.Fatalf("cred = %+v, want nil on empty store", cred)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cred := &models.Credential{
		AccessToken:      "at",
		RefreshToken:     "rt",
		ExpiresAt:        now.Add(30 * time.Minute),
		RefreshExpiresAt: now.Add(24 * time.Hour),
		UpdatedAt:        now,
	}

	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO pbx\.api_credentials`).
		WithArgs(cred.AccessToken, cred.RefreshToken, cred.ExpiresAt,
			cred.RefreshExpiresAt, cred.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT access_token`).
		WillReturnRows(pgxmock.NewRows([]string{
			"access_token", "refresh_token", "expires_at", "refresh_expires_at", "updated_at",
		}).AddRow(cred.AccessToken, cred.RefreshToken, cred.ExpiresAt,
			cred.RefreshExpiresAt, cred.UpdatedAt))

	s := NewCredentialStore(mock)
	if err := s.Save(context.Background(), cred); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.AccessToken != "at" || !got.ExpiresAt.Equal(cred.ExpiresAt) {
		t.Fatalf("loaded credential = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCursorLoadZeroWhenUnset(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectQuery(`SELECT last_synced_at`).WillReturnError(pgx.ErrNoRows)

	got, err := NewCursorStore(mock).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("cursor = %v, want zero time", got)
	}
}

func TestCursorSaveAndLoad(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO pbx\.sync_state`).
		WithArgs(at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT last_synced_at`).
		WillReturnRows(pgxmock.NewRows([]string{"last_synced_at"}).AddRow(at))

	s := NewCursorStore(mock)
	if err := s.Save(context.Background(), at); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("cursor = %v, want %v", got, at)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
