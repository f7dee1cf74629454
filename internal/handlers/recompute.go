package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fitledger/internal/recompute"
)

// RecomputeHandler exposes the recompute trigger to webhook and backfill
// collaborators
type RecomputeHandler struct {
	coordinator *recompute.Coordinator
	logger      *slog.Logger
}

// NewRecomputeHandler creates a new recompute handler
func NewRecomputeHandler(coordinator *recompute.Coordinator) *RecomputeHandler {
	return &RecomputeHandler{
		coordinator: coordinator,
		logger:      slog.Default(),
	}
}

// HandleRecompute handles POST /recompute/{userID}. Runs synchronously and
// returns the run summary. Set dry_run=true to report what would change
// without persisting.
func (h *RecomputeHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "Missing user id", http.StatusBadRequest)
		return
	}

	dryRun := r.URL.Query().Get("dry_run") == "true"

	summary, err := h.coordinator.Recompute(r.Context(), userID, dryRun)
	if err != nil {
		h.logger.Error("Recompute failed", "error", err, "user_id", userID, "dry_run", dryRun)
		http.Error(w, "Recompute failed, retry with backoff", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		h.logger.Error("Failed to encode recompute summary", "error", err)
	}
}
