package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jparker/dispatch-api/internal/api"
	"github.com/jparker/dispatch-api/internal/api/middleware"
)

// routerDeps bundles the handlers the router mounts.
type routerDeps struct {
	authHandler    *api.AuthHandler
	taskHandler    *api.TaskHandler
	adminHandler   *api.AdminHandler
	healthHandler  *api.HealthHandler
	authMiddleware *middleware.AuthMiddleware
}

// newRouter builds the chi router with all routes and middleware.
func newRouter(deps routerDeps) http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.TraceMiddleware)

	// Unauthenticated surface.
	router.Get("/healthz", deps.healthHandler.Check)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", deps.authHandler.Register)
		r.Post("/login", deps.authHandler.Login)
	})

	// Authenticated API.
	router.Group(func(r chi.Router) {
		r.Use(deps.authMiddleware.Authenticate)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", deps.taskHandler.CreateTask)
			r.Get("/", deps.taskHandler.ListTasks)
			r.Get("/{id}", deps.taskHandler.GetTask)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/tasks/stats", deps.adminHandler.TaskStats)
			r.Post("/tasks/cleanup", deps.adminHandler.Cleanup)
		})
	})

	return router
}
