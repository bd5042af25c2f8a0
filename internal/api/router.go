package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-todo/internal/api/recovery"
)

// NewRouter wires the todo facade, health and metrics endpoints.
func NewRouter(svc TodoService, health ServiceHealth, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()

	// Global middlewares
	router.Use(requestLogger(log))
	router.Use(recovery.Middleware)

	todoHandler := NewTodoHandler(svc)
	healthHandler := NewHealthHandler(health)

	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/api/todo/{email}", todoHandler.ListItems).Methods("GET")
	router.HandleFunc("/api/todo/{email}", todoHandler.AddItem).Methods("POST")

	return router
}
