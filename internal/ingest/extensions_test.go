package ingest

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestUpsertExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		row      map[string]any
		wantExt  string
		wantName string
		noCall   bool
	}{
		{
			name:     "canonical keys",
			row:      map[string]any{"extension": "201", "name": "Alice"},
			wantExt:  "201",
			wantName: "Alice",
		},
		{
			name:     "alias keys",
			row:      map[string]any{"ext": "202", "display_name": "Bob"},
			wantExt:  "202",
			wantName: "Bob",
		},
		{
			name:     "numeric extension",
			row:      map[string]any{"number": float64(203), "username": "Carol"},
			wantExt:  "203",
			wantName: "Carol",
		},
		{
			name:     "missing name falls back to extension",
			row:      map[string]any{"extension": "204"},
			wantExt:  "204",
			wantName: "204",
		},
		{
			name:   "missing extension is ignored",
			row:    map[string]any{"name": "Nobody"},
			noCall: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("pgxmock: %v", err)
			}
			defer mock.Close()

			if !tc.noCall {
				mock.ExpectExec(`INSERT INTO pbx\.agent_extensions`).
					WithArgs(tc.wantExt, tc.wantName).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			if err := UpsertExtension(context.Background(), mock, tc.row); err != nil {
				t.Fatalf("UpsertExtension: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}
