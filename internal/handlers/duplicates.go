package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fitledger/internal/database"
	"fitledger/internal/dedup"
)

// DuplicatesHandler exposes duplicate groups to diagnostics tooling without
// mutating any state
type DuplicatesHandler struct {
	db     *database.DB
	engine *dedup.Engine
	logger *slog.Logger
}

// NewDuplicatesHandler creates a new duplicates handler
func NewDuplicatesHandler(db *database.DB, engine *dedup.Engine) *DuplicatesHandler {
	return &DuplicatesHandler{
		db:     db,
		engine: engine,
		logger: slog.Default(),
	}
}

type duplicateMember struct {
	Activity      activityResponse `json:"activity"`
	TypeMatch     bool             `json:"type_match"`
	DurationRatio float64          `json:"duration_ratio"`
	SameSource    bool             `json:"same_source"`
}

type duplicateGroup struct {
	Canonical  activityResponse  `json:"canonical"`
	Duplicates []duplicateMember `json:"duplicates"`
}

// HandleDuplicates handles GET /duplicates/{userID}?start=&end=. Reports the
// duplicate groups the engine would form in the window, read-only.
func (h *DuplicatesHandler) HandleDuplicates(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "Missing user id", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	start, end, err := parseWindow(query.Get("start"), query.Get("end"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	activities, err := h.db.ListActivitiesInRange(userID, start, end, true)
	if err != nil {
		h.logger.Error("Failed to list activities for dedup audit", "error", err, "user_id", userID)
		http.Error(w, "Failed to list activities", http.StatusInternalServerError)
		return
	}

	groups := h.engine.FindGroups(activities)

	response := make([]duplicateGroup, 0, len(groups))
	for _, g := range groups {
		dg := duplicateGroup{Canonical: toActivityResponse(g.Canonical)}
		for _, m := range g.Duplicates {
			dg.Duplicates = append(dg.Duplicates, duplicateMember{
				Activity:      toActivityResponse(m.Activity),
				TypeMatch:     m.TypeMatch,
				DurationRatio: m.DurationRatio,
				SameSource:    m.SameSource,
			})
		}
		response = append(response, dg)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"groups": response}); err != nil {
		h.logger.Error("Failed to encode duplicates response", "error", err)
	}
}
