package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Simplereally/bloomstudio-sub005/internal/http/handlers"
	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
	"github.com/Simplereally/bloomstudio-sub005/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(cfg.CORSOrigins),
		middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/batches", func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret))

		r.Post("/", app.BatchStart)
		r.Get("/", app.BatchList)
		r.Get("/events", app.OwnerEvents)

		r.Route("/{batch_id}", func(r chi.Router) {
			r.Get("/", app.BatchGet)
			r.Post("/pause", app.BatchPause)
			r.Post("/resume", app.BatchResume)
			r.Post("/cancel", app.BatchCancel)
			r.Get("/artifacts", app.BatchArtifacts)
			r.Get("/events", app.BatchEvents)
		})
	})

	r.Route("/v1/artifacts", func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret))
		r.Get("/{artifact_id}/download", app.ArtifactDownload)
	})

	return r
}
