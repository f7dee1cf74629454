package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fitledger/internal/config"
	"fitledger/internal/database"
	"fitledger/internal/dedup"
	"fitledger/internal/metrics"
	"fitledger/internal/middleware"
	"fitledger/internal/recompute"
)

// NewRouter assembles the HTTP surface
func NewRouter(cfg *config.Config, db *database.DB, engine *dedup.Engine, coordinator *recompute.Coordinator) chi.Router {
	activitiesHandler := NewActivitiesHandler(db)
	recomputeHandler := NewRecomputeHandler(coordinator)
	duplicatesHandler := NewDuplicatesHandler(db, engine)

	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(cfg.InternalAPIKey))

		r.With(middleware.Metrics(metrics.EndpointUpsertActivity)).
			Put("/activities", activitiesHandler.HandleUpsert)
		r.With(middleware.Metrics(metrics.EndpointActivities)).
			Get("/activities/{userID}", activitiesHandler.HandleList)
		r.With(middleware.Metrics(metrics.EndpointRecompute)).
			Post("/recompute/{userID}", recomputeHandler.HandleRecompute)
		r.With(middleware.Metrics(metrics.EndpointDuplicates)).
			Get("/duplicates/{userID}", duplicatesHandler.HandleDuplicates)
	})

	r.With(middleware.Metrics(metrics.EndpointHealth)).
		Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := db.Health(); err != nil {
				http.Error(w, "Unhealthy", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

	return r
}
