package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fitledger/internal/database"
)

// ActivitiesHandler handles activity ingestion and the read surface
type ActivitiesHandler struct {
	db     *database.DB
	logger *slog.Logger
}

// NewActivitiesHandler creates a new activities handler
func NewActivitiesHandler(db *database.DB) *ActivitiesHandler {
	return &ActivitiesHandler{
		db:     db,
		logger: slog.Default(),
	}
}

// upsertRequest is the ingestion payload, keyed by (user_id, source, external_id)
type upsertRequest struct {
	UserID          string   `json:"user_id"`
	Source          string   `json:"source"`
	ExternalID      string   `json:"external_id"`
	StartTime       int64    `json:"start_time"` // unix seconds
	DurationSeconds int64    `json:"duration_seconds"`
	NormalizedPower *float64 `json:"normalized_power,omitempty"`
	AverageHR       *float64 `json:"average_hr,omitempty"`
	ProviderStress  *float64 `json:"provider_stress,omitempty"`
	ActivityType    *string  `json:"activity_type,omitempty"`
	SeedCTL         *float64 `json:"seed_ctl,omitempty"`
	SeedATL         *float64 `json:"seed_atl,omitempty"`
}

// activityResponse is one activity on the read surface. TSB is computed from
// ctl and atl on the way out, never stored.
type activityResponse struct {
	ID              int64    `json:"id"`
	UserID          string   `json:"user_id"`
	Source          string   `json:"source"`
	ExternalID      string   `json:"external_id"`
	StartTime       int64    `json:"start_time"`
	DurationSeconds int64    `json:"duration_seconds"`
	ActivityType    *string  `json:"activity_type,omitempty"`
	StressScore     float64  `json:"stress_score"`
	IsDuplicate     bool     `json:"is_duplicate"`
	DuplicateOf     *int64   `json:"duplicate_of,omitempty"`
	CTL             *float64 `json:"ctl,omitempty"`
	ATL             *float64 `json:"atl,omitempty"`
	TSB             *float64 `json:"tsb,omitempty"`
}

func toActivityResponse(a *database.Activity) activityResponse {
	resp := activityResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		Source:          a.Source,
		ExternalID:      a.ExternalID,
		StartTime:       a.StartTime,
		DurationSeconds: a.DurationSeconds,
		ActivityType:    a.ActivityType,
		StressScore:     a.StressScore,
		IsDuplicate:     a.IsDuplicate,
		DuplicateOf:     a.DuplicateOf,
		CTL:             a.CTL,
		ATL:             a.ATL,
	}
	if a.CTL != nil && a.ATL != nil {
		tsb := *a.CTL - *a.ATL
		resp.TSB = &tsb
	}
	return resp
}

// HandleUpsert handles PUT /activities. Upserts one activity and enqueues a
// recompute trigger for the user.
func (h *ActivitiesHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Source == "" || req.ExternalID == "" {
		http.Error(w, "user_id, source and external_id are required", http.StatusBadRequest)
		return
	}
	if req.DurationSeconds < 0 {
		http.Error(w, "duration_seconds must be >= 0", http.StatusBadRequest)
		return
	}

	activity := &database.Activity{
		UserID:          req.UserID,
		Source:          req.Source,
		ExternalID:      req.ExternalID,
		StartTime:       req.StartTime,
		DurationSeconds: req.DurationSeconds,
		NormalizedPower: req.NormalizedPower,
		AverageHR:       req.AverageHR,
		ProviderStress:  req.ProviderStress,
		ActivityType:    req.ActivityType,
		SeedCTL:         req.SeedCTL,
		SeedATL:         req.SeedATL,
	}

	if err := h.db.UpsertActivity(activity); err != nil {
		h.logger.Error("Failed to upsert activity", "error", err,
			"user_id", req.UserID, "source", req.Source, "external_id", req.ExternalID)
		http.Error(w, "Failed to upsert activity", http.StatusInternalServerError)
		return
	}

	if _, err := h.db.EnqueueRecomputeJob(req.UserID, false); err != nil {
		h.logger.Error("Failed to enqueue recompute job", "error", err, "user_id", req.UserID)
		http.Error(w, "Failed to enqueue recompute", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Activity upserted",
		"activity_id", activity.ID,
		"user_id", req.UserID,
		"source", req.Source,
		"external_id", req.ExternalID)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toActivityResponse(activity)); err != nil {
		h.logger.Error("Failed to encode upsert response", "error", err)
	}
}

// HandleList handles GET /activities/{userID}. Returns the user's canonical
// history with ctl, atl and the tsb they imply. Pass a start/end unix-second
// window to restrict the range, and duplicates=true to include demoted rows.
func (h *ActivitiesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "Missing user id", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	includeDuplicates := query.Get("duplicates") == "true"

	var activities []*database.Activity
	var err error
	if query.Get("start") != "" || query.Get("end") != "" {
		start, end, perr := parseWindow(query.Get("start"), query.Get("end"))
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		activities, err = h.db.ListActivitiesInRange(userID, start, end, includeDuplicates)
	} else {
		activities, err = h.db.ListActivitiesByUser(userID, includeDuplicates)
	}
	if err != nil {
		h.logger.Error("Failed to list activities", "error", err, "user_id", userID)
		http.Error(w, "Failed to list activities", http.StatusInternalServerError)
		return
	}

	responses := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		responses = append(responses, toActivityResponse(a))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"activities": responses}); err != nil {
		h.logger.Error("Failed to encode activities response", "error", err)
	}
}

// parseWindow parses start/end query parameters into a unix-second window
func parseWindow(startStr, endStr string) (int64, int64, error) {
	start := int64(0)
	end := int64(1<<62 - 1)

	if startStr != "" {
		v, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, errInvalidWindow("start")
		}
		start = v
	}
	if endStr != "" {
		v, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, errInvalidWindow("end")
		}
		end = v
	}
	if end < start {
		return 0, 0, errInvalidWindow("end before start")
	}
	return start, end, nil
}

type errInvalidWindow string

func (e errInvalidWindow) Error() string {
	return "Invalid window parameter: " + string(e)
}
