// Package api provides HTTP handlers for the PharmaVerse API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/pharmaverse/dashboard/internal/config"
	"github.com/pharmaverse/dashboard/internal/orchestrator"
	"github.com/pharmaverse/dashboard/internal/session"
	"github.com/pharmaverse/dashboard/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	hub      *session.Hub
	orch     *orchestrator.Orchestrator
	cfg      *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions *session.Manager, hub *session.Hub, orch *orchestrator.Orchestrator, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		hub:      hub,
		orch:     orch,
		cfg:      cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
