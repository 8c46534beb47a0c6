package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pbx-bridge/internal/config"
	"pbx-bridge/internal/ingest"
	"pbx-bridge/internal/pbx"
	"pbx-bridge/internal/pbxsync"
)

func NewRouter(cfg *config.Config, pool *pgxpool.Pool, engine *ingest.Engine, client *pbx.Client, runner *pbxsync.Runner) http.Handler {
	r := chi.NewRouter()

	r.Use(LoggingMiddleware)
	r.Use(RecoverMiddleware)

	r.Get("/health", HealthHandler(pool))
	r.Get("/version", VersionHandler())

	// Push ingestion; the webhook checks its own (optional) secret.
	r.Post("/pbx/webhook", WebhookHandler(cfg, engine))

	// External APIs
	r.Route("/api", func(api chi.Router) {
		api.Use(APIKeyAuth(cfg))
		api.Get("/calls", CallQueryHandler(pool))
		api.Get("/calls/{call_id}/recording", RecordingHandler(pool, client))
		api.Post("/sync/run", SyncTriggerHandler(runner))
	})

	return r
}
