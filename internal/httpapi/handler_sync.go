package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pbx-bridge/internal/pbxsync"
)

type syncResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// SyncTriggerHandler runs one pull cycle. Meant to be hit by an
// external cron; overlapping triggers are reported, not queued.
func SyncTriggerHandler(runner *pbxsync.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			writeSyncJSON(w, http.StatusServiceUnavailable, syncResponse{Message: "sync disabled"})
			return
		}

		err := runner.Run(r.Context())
		switch {
		case err == nil:
			writeSyncJSON(w, http.StatusOK, syncResponse{OK: true})
		case errors.Is(err, pbxsync.ErrAlreadyRunning):
			writeSyncJSON(w, http.StatusConflict, syncResponse{Message: "sync already running"})
		default:
			slog.Error("sync run failed", "error", err)
			writeSyncJSON(w, http.StatusBadGateway, syncResponse{Message: "sync failed"})
		}
	}
}

func writeSyncJSON(w http.ResponseWriter, status int, resp syncResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
