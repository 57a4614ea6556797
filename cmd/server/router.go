package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/owl-api/internal/api"
	apiMiddleware "github.com/phrazzld/owl-api/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Metrics)

	system := api.NewSystemHandler(version)
	authHandler := api.NewAuthHandler()
	analysisHandler := api.NewAnalysisHandler(app.orchestrator, app.queries, app.logger)
	adminHandler := api.NewAdminHandler(app.queries, app.pool, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Get("/", system.Root)
	r.Get("/health", system.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Get("/auth/me", authHandler.Me)

		r.Route("/analysis", func(r chi.Router) {
			r.Post("/single-video", analysisHandler.SubmitSingleVideo)
			r.Post("/complete-account", analysisHandler.SubmitCompleteAccount)
			r.Get("/status/{id}", analysisHandler.GetStatus)
			r.Get("/result/{id}", analysisHandler.GetResult)
			r.Get("/history", analysisHandler.ListHistory)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(apiMiddleware.RequireAdmin)
			r.Get("/tasks", adminHandler.ListTasks)
			r.Delete("/tasks/{id}", adminHandler.DeleteTask)
			r.Get("/resources", adminHandler.ListResources)
		})
	})

	return r
}
