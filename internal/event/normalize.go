package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pbx-bridge/internal/models"
)

// Field alias tables. Each canonical field is resolved by trying the
// candidates in order and taking the first present, non-null value.
// New firmware spellings are additive entries here, not new code.
var (
	callIDAliases    = []string{"call_id", "callId", "unique_id", "uniqueid", "id"}
	directionAliases = []string{"direction", "call_direction", "type"}
	statusAliases    = []string{"status", "event", "state"}
	fromAliases      = []string{"from", "caller", "caller_number", "callerNumber", "src"}
	toAliases        = []string{"to", "callee", "callee_number", "calleeNumber", "dst"}
	extensionAliases = []string{"extension", "ext", "agent_extension", "extension_number", "agent_ext"}
	startAliases     = []string{"start_time", "startTime", "start_ts", "timestamp"}
	endAliases       = []string{"end_time", "endTime", "end_ts"}
	durationAliases  = []string{"duration", "billsec", "talk_time"}
	recordingAliases = []string{"recording_url", "recordingUrl", "record_url", "recording"}
)

const (
	maxDirectionLen = 20
	maxStatusLen    = 30
	hashIDLen       = 16
)

// FromWebhook normalizes a push-delivered payload. When the payload
// carries no identity field the call id is a content hash, so repeated
// deliveries of the same logical event collapse to one id regardless
// of field order in the wire payload.
func FromWebhook(payload map[string]any, defaultCC string) models.CallEvent {
	ev := normalize(payload, defaultCC)
	if ev.CallID == "" {
		ev.CallID = hashID(ev)
	}
	return ev
}

// FromCallLog normalizes a pulled CDR row. Rows without an identity
// field fall back to a start-from-to concatenation; pulled windows are
// replayed against the same store, so the weaker guarantee holds.
func FromCallLog(row map[string]any, defaultCC string) models.CallEvent {
	ev := normalize(row, defaultCC)
	if ev.CallID == "" {
		ev.CallID = fmt.Sprintf("%s-%s-%s",
			firstString(row, startAliases),
			firstString(row, fromAliases),
			firstString(row, toAliases))
	}
	return ev
}

func normalize(payload map[string]any, defaultCC string) models.CallEvent {
	ev := models.CallEvent{
		CallID:       firstString(payload, callIDAliases),
		Direction:    clip(strings.ToLower(firstString(payload, directionAliases)), maxDirectionLen),
		Status:       clip(strings.ToLower(firstString(payload, statusAliases)), maxStatusLen),
		FromNumber:   NormalizePhone(firstString(payload, fromAliases), defaultCC),
		ToNumber:     NormalizePhone(firstString(payload, toAliases), defaultCC),
		Extension:    firstString(payload, extensionAliases),
		StartTime:    firstString(payload, startAliases),
		EndTime:      firstString(payload, endAliases),
		Duration:     firstInt(payload, durationAliases),
		RecordingURL: firstString(payload, recordingAliases),
		LastEventAt:  time.Now().UTC(),
	}

	if raw, err := json.Marshal(payload); err == nil {
		ev.RawPayload = raw
	} else {
		ev.RawPayload = []byte(fmt.Sprintf("%q", fmt.Sprintf("%v", payload)))
	}
	return ev
}

// hashID derives a stable identity from the event content. The field
// set matches what distinguishes one logical call from another on the
// push channel.
func hashID(ev models.CallEvent) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s",
		ev.FromNumber, ev.ToNumber, ev.Extension, ev.Status, ev.StartTime)
	return hex.EncodeToString(h.Sum(nil))[:hashIDLen]
}

// firstString resolves the first present, non-null alias as a string.
// Numbers and booleans are rendered rather than dropped; timestamps
// in particular arrive as either strings or numbers.
func firstString(payload map[string]any, aliases []string) string {
	for _, key := range aliases {
		v, present := payload[key]
		if !present || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		case float64:
			if s == float64(int64(s)) {
				return strconv.FormatInt(int64(s), 10)
			}
			return strconv.FormatFloat(s, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(s)
		}
	}
	return ""
}

// firstInt resolves the first alias that parses as a non-negative
// integer; nil when no alias does.
func firstInt(payload map[string]any, aliases []string) *int {
	for _, key := range aliases {
		v, present := payload[key]
		if !present || v == nil {
			continue
		}
		var n int
		switch t := v.(type) {
		case float64:
			n = int(t)
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(t))
			if err != nil {
				continue
			}
			n = parsed
		default:
			continue
		}
		if n >= 0 {
			return &n
		}
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
