package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the operator API on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Healthz)
	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Decisions
		r.Post("/decisions", h.SubmitDecision)
		r.Get("/decisions/pending", h.ListPendingDecisions)
		r.Get("/decisions/history", h.ListDecisionHistory)
		r.Get("/decisions/{id}", h.GetDecision)
		r.Post("/decisions/{id}/approve", h.ApproveDecision)
		r.Post("/decisions/{id}/reject", h.RejectDecision)
		r.Post("/decisions/{id}/execute", h.ExecuteDecision)
		r.Post("/decisions/{id}/escalate", h.EscalateDecision)

		// Human tasks
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/assign", h.AssignTask)
		r.Post("/tasks/{id}/start", h.StartTask)
		r.Post("/tasks/{id}/complete", h.CompleteTask)

		// Operators
		r.Post("/operators", h.RegisterOperator)
		r.Get("/operators", h.ListOperators)
		r.Put("/operators/{id}/status", h.SetOperatorStatus)

		// Review workflows
		r.Post("/workflows", h.StartWorkflow)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Post("/workflows/{id}/advance", h.AdvanceWorkflow)

		// Progress tracking
		r.Post("/tracking", h.TrackEntity)
		r.Get("/tracking", h.ListTracked)
		r.Put("/tracking/{id}", h.UpdateTracked)
		r.Delete("/tracking/{id}", h.UntrackEntity)

		// Swarm
		r.Post("/swarm/override", h.EmergencyOverride)
		r.Get("/swarm/patterns", h.ListPatterns)

		// Alerts and system
		r.Get("/alerts", h.ListAlerts)
		r.Post("/alerts/{id}/ack", h.AcknowledgeAlert)
		r.Get("/system/status", h.SystemStatus)
		r.Post("/system/maintenance", h.SetMaintenance)
	})
}
