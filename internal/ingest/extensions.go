package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Extension roster rows also vary by firmware build.
var (
	extNumberAliases = []string{"extension", "ext", "number"}
	extNameAliases   = []string{"name", "username", "display_name"}
)

// UpsertExtension records an extension sighting: first sighting
// creates the row, a changed display name refreshes it. Extensions are
// never deleted here.
func UpsertExtension(ctx context.Context, db DB, row map[string]any) error {
	extension := firstRowString(row, extNumberAliases)
	if extension == "" {
		return nil
	}
	name := firstRowString(row, extNameAliases)
	if name == "" {
		name = extension
	}

	_, err := db.Exec(ctx, `
        INSERT INTO pbx.agent_extensions (extension, display_name)
        VALUES ($1, $2)
        ON CONFLICT (extension) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            updated_at   = now()
        WHERE pbx.agent_extensions.display_name IS DISTINCT FROM EXCLUDED.display_name
    `, extension, name)
	if err != nil {
		return fmt.Errorf("upsert extension %s: %w", extension, err)
	}

	slog.Debug("upserted extension", "extension", extension, "name", name)
	return nil
}

func firstRowString(row map[string]any, aliases []string) string {
	for _, key := range aliases {
		switch v := row[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strings.TrimSpace(fmt.Sprintf("%.0f", v))
		}
	}
	return ""
}
