package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"pbx-bridge/internal/models"
)

type CallsResponse struct {
	Items []models.CallEvent `json:"items"`
}

// callQuerier is the slice of the pool the query handler needs.
type callQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func CallQueryHandler(pool callQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		sinceStr := q.Get("since")
		untilStr := q.Get("until")
		caller := q.Get("from")
		callee := q.Get("to")
		extension := q.Get("extension")
		status := q.Get("status")

		limitStr := q.Get("limit")
		if limitStr == "" {
			limitStr = "100"
		}
		limit, _ := strconv.Atoi(limitStr)
		if limit <= 0 {
			limit = 100
		}
		if limit > 1000 {
			limit = 1000
		}

		var (
			where []string
			args  []interface{}
			idx   = 1
		)

		layout := time.RFC3339
		if sinceStr != "" {
			if t, err := time.Parse(layout, sinceStr); err == nil {
				where = append(where, "last_event_at >= $"+strconv.Itoa(idx))
				args = append(args, t)
				idx++
			}
		}
		if untilStr != "" {
			if t, err := time.Parse(layout, untilStr); err == nil {
				where = append(where, "last_event_at <= $"+strconv.Itoa(idx))
				args = append(args, t)
				idx++
			}
		}
		if caller != "" {
			where = append(where, "from_number = $"+strconv.Itoa(idx))
			args = append(args, caller)
			idx++
		}
		if callee != "" {
			where = append(where, "to_number = $"+strconv.Itoa(idx))
			args = append(args, callee)
			idx++
		}
		if extension != "" {
			where = append(where, "extension = $"+strconv.Itoa(idx))
			args = append(args, extension)
			idx++
		}
		if status != "" {
			where = append(where, "status = $"+strconv.Itoa(idx))
			args = append(args, status)
			idx++
		}

		query := "SELECT id, call_id, direction, status, from_number, to_number, extension, start_time, end_time, duration, recording_url, agent_user, linked_kind, linked_id, last_event_at, created_at FROM pbx.call_events"
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		query += " ORDER BY last_event_at DESC LIMIT " + strconv.Itoa(limit)

		rows, err := pool.Query(r.Context(), query, args...)
		if err != nil {
			http.Error(w, "query error", http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		res := CallsResponse{}
		for rows.Next() {
			var c models.CallEvent
			if err := rows.Scan(
				&c.ID, &c.CallID, &c.Direction, &c.Status,
				&c.FromNumber, &c.ToNumber, &c.Extension,
				&c.StartTime, &c.EndTime, &c.Duration, &c.RecordingURL,
				&c.AgentUser, &c.LinkedKind, &c.LinkedID,
				&c.LastEventAt, &c.CreatedAt,
			); err != nil {
				http.Error(w, "scan error", http.StatusInternalServerError)
				return
			}
			res.Items = append(res.Items, c)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}
}
