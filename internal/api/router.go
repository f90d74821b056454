// Package api exposes the cleaning pipeline over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/smart-financial-parser/internal/api/handlers"
	"github.com/dvloznov/smart-financial-parser/internal/api/middleware"
	"github.com/dvloznov/smart-financial-parser/internal/jobs"
)

// RouterConfig holds the dependencies of the HTTP API.
type RouterConfig struct {
	Publisher      jobs.Publisher
	Store          jobs.JobStore
	Results        jobs.ResultStore
	MaxUploadBytes int64
	Log            zerolog.Logger
}

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(cfg RouterConfig) http.Handler {
	cleanHandler := handlers.NewCleanHandler(cfg.Publisher, cfg.MaxUploadBytes, cfg.Log)
	jobsHandler := handlers.NewJobsHandler(cfg.Store, cfg.Results, cfg.Log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID(cfg.Log))
	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/clean", cleanHandler.CreateCleanJob)
		r.Get("/jobs", jobsHandler.ListJobs)
		r.Get("/jobs/{jobID}", jobsHandler.GetJob)
		r.Get("/jobs/{jobID}/result", jobsHandler.GetJobResult)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return r
}
