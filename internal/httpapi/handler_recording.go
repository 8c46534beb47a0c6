package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pbx-bridge/internal/pbx"
)

type recordingResponse struct {
	CallID string `json:"call_id"`
	URL    string `json:"url"`
}

// recording id spellings seen in raw CDR payloads.
var recordingIDKeys = []string{"recording_id", "record_id"}

// RecordingHandler resolves a recording URL for a stored call. The
// stored recording_url wins; when only a recording id arrived in the
// raw payload, the URL is fetched from the upstream on demand.
func RecordingHandler(pool *pgxpool.Pool, client *pbx.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callID := chi.URLParam(r, "call_id")

		var (
			storedURL string
			raw       []byte
		)
		err := pool.QueryRow(r.Context(), `
            SELECT recording_url, coalesce(raw_payload, '{}'::jsonb)
            FROM pbx.call_events WHERE call_id = $1
        `, callID).Scan(&storedURL, &raw)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		url := storedURL
		if url == "" && client != nil {
			if id := recordingIDFromRaw(raw); id != "" {
				fetched, err := client.FetchRecordingURL(r.Context(), id)
				if err != nil {
					http.Error(w, "upstream error", http.StatusBadGateway)
					return
				}
				url = fetched
			}
		}
		if url == "" {
			http.Error(w, "no recording", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(recordingResponse{CallID: callID, URL: url})
	}
}

func recordingIDFromRaw(raw []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	for _, key := range recordingIDKeys {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}
