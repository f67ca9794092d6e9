package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/.well-known/agent.json", h.AgentDescriptor)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Tasks
		r.Post("/tasks", h.SubmitTask)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/cancel", h.CancelTask)
		r.Get("/tasks/{id}/stream", h.StreamTask)
		r.Get("/tasks/{id}/events", h.ListTaskEvents)

		// Sessions
		r.Get("/sessions/{id}/tasks", h.ListSessionTasks)

		// Specialists
		r.Get("/specialists", h.ListSpecialists)
		r.With(h.requireAdmin).Post("/specialists", h.RegisterSpecialist)

		// Correlation
		r.Post("/correlate", h.Correlate)

		// Push notifications
		r.Get("/notifications/key", h.NotificationKey)
	})
}
