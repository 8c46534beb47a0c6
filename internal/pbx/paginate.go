package pbx

import "context"

// maxPages bounds any pagination walk. A firmware build that always
// reports more data must not spin the sync loop forever.
const maxPages = 1000

// listKeys are tried in order when locating the item list in a
// response envelope; nestedListKeys are tried one level down when a
// candidate holds a map instead of a list. Different firmware builds
// wrap lists differently, so this is data, not branching code.
var (
	listKeys       = []string{"data", "items", "list", "records", "result"}
	nestedListKeys = []string{"items", "list", "records", "data"}
)

// PageFetch retrieves one page of a resource.
type PageFetch func(ctx context.Context, page, pageSize int) (map[string]any, error)

// ForEachPage walks a paginated resource from page 1 until an empty
// page, a completeness signal, or the page ceiling, passing each
// page's items to fn. A fresh call re-walks from page 1.
func ForEachPage(ctx context.Context, pageSize int, fetch PageFetch, fn func(items []map[string]any) error) error {
	for page := 1; page <= maxPages; page++ {
		payload, err := fetch(ctx, page, pageSize)
		if err != nil {
			return err
		}

		items := ExtractItems(payload)
		if len(items) == 0 {
			return nil
		}
		if err := fn(items); err != nil {
			return err
		}
		if !hasMore(payload, page, pageSize, len(items)) {
			return nil
		}
	}
	return nil
}

// ExtractItems locates the record list inside a response envelope.
// It is total over malformed payloads: a shape mismatch yields nil,
// never an error.
func ExtractItems(payload map[string]any) []map[string]any {
	for _, key := range listKeys {
		switch v := payload[key].(type) {
		case []any:
			return toRecords(v)
		case map[string]any:
			for _, nested := range nestedListKeys {
				if l, ok := v[nested].([]any); ok {
					return toRecords(l)
				}
			}
		}
	}
	return nil
}

func toRecords(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

// hasMore decides whether another page should be requested. With an
// integer total field the answer is exact; otherwise a full page is
// taken to mean more may follow.
func hasMore(payload map[string]any, page, pageSize, got int) bool {
	for _, key := range []string{"total", "total_count", "count"} {
		if v, ok := payload[key].(float64); ok {
			return page*pageSize < int(v)
		}
	}
	return got >= pageSize
}
