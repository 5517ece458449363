// Package api exposes the HTTP surface of the trip board: JSON endpoints
// for mutations and one-shot reads, plus SSE streams that forward live
// query snapshots.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"example.com/tripboard/internal/auth"
	"example.com/tripboard/internal/catalog"
	"example.com/tripboard/internal/domain"
	"example.com/tripboard/internal/group"
	"example.com/tripboard/internal/live"
	"example.com/tripboard/internal/planner"
	"example.com/tripboard/internal/store"
	"example.com/tripboard/internal/validate"
)

// Handler coordinates HTTP requests with the repositories.
type Handler struct {
	catalog    *catalog.Service
	planner    *planner.Service
	membership *group.Service
}

// NewHandler builds a Handler.
func NewHandler(catalogSvc *catalog.Service, plannerSvc *planner.Service, membershipSvc *group.Service) *Handler {
	return &Handler{catalog: catalogSvc, planner: plannerSvc, membership: membershipSvc}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/stream", h.streamActivities)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/planning", h.planning)
	mux.HandleFunc("/v1/planning/stream", h.streamPlanning)
	mux.HandleFunc("/v1/planning/", h.planningByID)
	mux.HandleFunc("/v1/membership", h.joinGroup)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch {
	case action == "favorite" && r.Method == http.MethodPost:
		h.toggleFavorite(w, r, id)
	case action != "":
		writeError(w, http.StatusNotFound, "not_found", "unknown action")
	case r.Method == http.MethodPatch:
		h.updateActivity(w, r, id)
	case r.Method == http.MethodDelete:
		h.removeActivity(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	if !requireWriteScope(w, r) {
		return
	}

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	id, err := h.catalog.Create(r.Context(), req.toDraft())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	var sub *live.Subscription
	switch {
	case r.URL.Query().Has("owner"):
		sub = h.catalog.ListCreatedBy(r.Context(), r.URL.Query().Get("owner"))
	case r.URL.Query().Has("favorited"):
		sub = h.catalog.ListFavoritedBy(r.Context(), r.URL.Query().Get("favorited"))
	default:
		sub = h.catalog.Watch(r.Context())
	}
	defer sub.Close()

	docs, err := firstSnapshot(r.Context(), sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs})
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request, id string) {
	if !requireWriteScope(w, r) {
		return
	}

	var patch store.Document
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.catalog.Update(r.Context(), id, patch); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeActivity(w http.ResponseWriter, r *http.Request, id string) {
	if !requireWriteScope(w, r) {
		return
	}

	if err := h.catalog.Remove(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request, id string) {
	if !requireWriteScope(w, r) {
		return
	}

	if err := h.catalog.ToggleFavorite(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) streamActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	streamSnapshots(w, r, h.catalog.Watch(r.Context()))
}

func (h *Handler) planning(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createPlanningItem(w, r)
	case http.MethodGet:
		h.listPlanning(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) planningByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/planning/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing planning item id")
		return
	}

	switch {
	case action == "done" && r.Method == http.MethodPost:
		h.togglePlanningDone(w, r, id)
	case action == "move" && r.Method == http.MethodPost:
		h.movePlanningItem(w, r, id)
	case action != "":
		writeError(w, http.StatusNotFound, "not_found", "unknown action")
	case r.Method == http.MethodPatch:
		h.updatePlanningItem(w, r, id)
	case r.Method == http.MethodDelete:
		h.removePlanningItem(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createPlanningItem(w http.ResponseWriter, r *http.Request) {
	if !requireWriteScope(w, r) {
		return
	}

	var req PlanningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	id, err := h.planner.Create(r.Context(), req.toDraft())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) listPlanning(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = domain.Today()
	}
	if !validate.Date(date) {
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrInvalidDate.Error())
		return
	}

	sub := h.planner.WatchDate(r.Context(), date)
	defer sub.Close()

	docs, err := firstSnapshot(r.Context(), sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "items": docs})
}

func (h *Handler) updatePlanningItem(w http.ResponseWriter, r *http.Request, id string) {
	if !requireWriteScope(w, r) {
		return
	}

	var patch store.Document
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.planner.Update(r.Context(), id, patch); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) togglePlanningDone(w http.ResponseWriter, r *http.Request, id string) {
	if !requireWriteScope(w, r) {
		return
	}

	var req struct {
		Done bool `json:"done"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.planner.ToggleDone(r.Context(), id, req.Done); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) movePlanningItem(w http.ResponseWriter, r *http.Request, id string) {
	if !requireWriteScope(w, r) {
		return
	}

	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.planner.MoveTo(r.Context(), id, req.Date); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removePlanningItem(w http.ResponseWriter, r *http.Request, id string) {
	if !requireWriteScope(w, r) {
		return
	}

	if err := h.planner.Remove(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) streamPlanning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = domain.Today()
	}
	if !validate.Date(date) {
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrInvalidDate.Error())
		return
	}
	streamSnapshots(w, r, h.planner.WatchDate(r.Context(), date))
}

func (h *Handler) joinGroup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireWriteScope(w, r) {
		return
	}

	if err := h.membership.EnsureMembership(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}

	g, err := h.membership.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// streamSnapshots forwards every snapshot of sub to the client as an SSE
// data event until the client disconnects. The subscription is closed on
// the way out.
func streamSnapshots(w http.ResponseWriter, r *http.Request, sub *live.Subscription) {
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case docs, open := <-sub.Snapshots():
			if !open {
				return
			}
			payload, err := json.Marshal(map[string]any{"items": docs})
			if err != nil {
				return
			}
			// SSE frames are newline-delimited; snapshots are single-line JSON.
			payload = bytes.ReplaceAll(payload, []byte("\n"), nil)
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// firstSnapshot waits for the initial query result of sub.
func firstSnapshot(ctx context.Context, sub *live.Subscription) ([]store.Document, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case docs, open := <-sub.Snapshots():
		if !open {
			if err := sub.Err(); err != nil {
				return nil, err
			}
			return sub.Snapshot(), nil
		}
		return docs, nil
	}
}

// requireWriteScope rejects the request unless it carries verified claims
// with the write scope. Reads stay public; every mutation goes through here.
func requireWriteScope(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", domain.ErrAuthRequired.Error())
		return false
	}
	if !claims.HasScope(auth.ScopeTripWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope trip:write required")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidationError(err):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "document not found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ActivityRequest is the payload for POST /v1/activities. Numeric fields
// accept numbers, numeric strings, empty strings, and null, because HTML
// form state serialises empty inputs as "".
type ActivityRequest struct {
	Name                string         `json:"name"`
	Category            string         `json:"category"`
	Neighborhood        string         `json:"neighborhood"`
	Address             string         `json:"address"`
	Image               string         `json:"image"`
	MapsLink            string         `json:"mapsLink"`
	GoogleQuery         string         `json:"googleQuery"`
	Rating              NullableNumber `json:"rating"`
	AveragePriceKrw     NullableNumber `json:"averagePriceKrw"`
	ReservationRequired bool           `json:"reservationRequired"`
	SuggestedTimeSlot   string         `json:"suggestedTimeSlot"`
	Notes               string         `json:"notes"`
}

func (r ActivityRequest) toDraft() domain.ActivityDraft {
	return domain.ActivityDraft{
		Name:                r.Name,
		Category:            r.Category,
		Neighborhood:        r.Neighborhood,
		Address:             r.Address,
		Image:               r.Image,
		MapsLink:            r.MapsLink,
		GoogleQuery:         r.GoogleQuery,
		Rating:              r.Rating.Value,
		AveragePriceKrw:     r.AveragePriceKrw.Value,
		ReservationRequired: r.ReservationRequired,
		SuggestedTimeSlot:   r.SuggestedTimeSlot,
		Notes:               r.Notes,
	}
}

// PlanningRequest is the payload for POST /v1/planning.
type PlanningRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	When     string `json:"when"`
	Period   string `json:"period"`
	Done     bool   `json:"done"`
	Time     string `json:"time"`
	Note     string `json:"note"`
}

func (r PlanningRequest) toDraft() domain.PlanningDraft {
	return domain.PlanningDraft{
		Title:    r.Title,
		Category: r.Category,
		When:     r.When,
		Period:   r.Period,
		Done:     r.Done,
		Time:     r.Time,
		Note:     r.Note,
	}
}

// NullableNumber decodes an optional JSON number. null, "" and absence all
// map to a nil Value.
type NullableNumber struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullableNumber) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		n.Value = nil
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			n.Value = nil
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		n.Value = &parsed
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	n.Value = &f
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n NullableNumber) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}
