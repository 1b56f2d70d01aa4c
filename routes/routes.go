package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/activity-pipeline/app"
	"github.com/upb/activity-pipeline/handlers"
	authmw "github.com/upb/activity-pipeline/middleware"
	"github.com/upb/activity-pipeline/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	logger := deps.Logger.Named("http")

	health := handlers.NewHealthHandler(databaseHandle(deps), logger)
	if hc := deps.StreamHealth(); hc != nil {
		health.WithCheck("stream", hc)
	}
	actions := handlers.NewActionHandler(deps.Bus, deps.Listener, logger)
	activity := handlers.NewActivityHandler(deps.EventLog(), deps.Listener, deps.Pipeline.Reads(), deps.SettingsService, deps.Config.Stream.Backend, logger)
	settings := handlers.NewSettingsHandler(deps.SettingsService, deps.Bus, logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)

		r.Post("/actions", actions.HandleIngest)

		r.Route("/activity", func(r chi.Router) {
			r.Get("/status", activity.HandleStatus)

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole(authmw.RoleAdmin))
				r.Get("/events", activity.HandleListEvents)
				r.Get("/events/{id}", activity.HandleGetEvent)
			})
		})

		r.Route("/settings/activity", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireRole(authmw.RoleAdmin))
			r.Get("/", settings.HandleGetActivity)
			r.Put("/", settings.HandleUpdateActivity)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// databaseHandle returns the pool checked by /readyz, nil without a database
func databaseHandle(deps *app.Dependencies) *sql.DB {
	if deps.DB == nil {
		return nil
	}
	return deps.DB.DB
}
