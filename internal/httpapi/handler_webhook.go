package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"pbx-bridge/internal/config"
	"pbx-bridge/internal/event"
	"pbx-bridge/internal/ingest"
)

// secretHeaders and secretBodyKeys are the locations the appliance is
// known to put the shared secret in, tried in order; first match wins.
var (
	secretHeaders  = []string{"X-PBX-Secret", "X-Webhook-Secret"}
	secretBodyKeys = []string{"secret", "webhook_secret"}
)

type webhookResponse struct {
	OK      bool   `json:"ok"`
	CallLog *int64 `json:"call_log"`
	Message string `json:"message,omitempty"`
}

// WebhookHandler ingests one pushed call event. A malformed JSON body
// is wrapped as an opaque raw field instead of being rejected, so
// diagnostic payloads from odd firmware are never dropped.
func WebhookHandler(cfg *config.Config, engine *ingest.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeWebhookJSON(w, http.StatusBadRequest, webhookResponse{Message: "invalid body"})
			return
		}
		defer r.Body.Close()

		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
			payload = map[string]any{"raw": string(body)}
		}

		if !checkWebhookSecret(cfg, r, payload) {
			writeWebhookJSON(w, http.StatusForbidden, webhookResponse{Message: "invalid webhook secret"})
			return
		}

		ev := event.FromWebhook(payload, cfg.DefaultCountryCode)
		res, err := engine.Upsert(r.Context(), ev)
		if err != nil {
			slog.Error("webhook upsert failed", "call_id", ev.CallID, "error", err)
			writeWebhookJSON(w, http.StatusInternalServerError, webhookResponse{Message: "failed to store call event"})
			return
		}

		if res.Skipped {
			writeWebhookJSON(w, http.StatusOK, webhookResponse{OK: true, Message: "skipped"})
			return
		}
		writeWebhookJSON(w, http.StatusOK, webhookResponse{OK: true, CallLog: &res.ID})
	}
}

// checkWebhookSecret is best-effort by contract: with no configured
// secret every delivery is accepted and the absence merely logged.
func checkWebhookSecret(cfg *config.Config, r *http.Request, payload map[string]any) bool {
	expected := cfg.WebhookSecret.Value()
	if expected == "" {
		slog.Warn("webhook secret not configured, accepting delivery", "remote", r.RemoteAddr)
		return true
	}

	var incoming string
	for _, h := range secretHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			incoming = v
			break
		}
	}
	if incoming == "" {
		for _, k := range secretBodyKeys {
			if v, ok := payload[k].(string); ok && strings.TrimSpace(v) != "" {
				incoming = strings.TrimSpace(v)
				break
			}
		}
	}
	return subtle.ConstantTimeCompare([]byte(incoming), []byte(expected)) == 1
}

func writeWebhookJSON(w http.ResponseWriter, status int, resp webhookResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
