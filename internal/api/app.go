// Package api exposes the synced board to a presentation layer over a local
// HTTP API and an MCP tool surface.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/emconsole/internal/board"
	"github.com/kalambet/emconsole/internal/emergency"
	"github.com/kalambet/emconsole/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Board is the live view served by the API. *session.Session satisfies it.
type Board interface {
	Records() []emergency.Record
	Get(id string) (emergency.Record, bool)
	Selected() string
	Select(id string) error
	ClearSelection()
	Subscribe(fn func(board.Change)) func()
	Refresh()
}

// History reads the archive of emergencies that left the board.
type History interface {
	ListPastEmergencies(limit, offset int) ([]storage.PastEmergency, error)
	GetPastEmergency(id string) (storage.PastEmergency, error)
}

type AppDeps struct {
	Board    Board
	History  History              // optional; history routes answer 503 without it
	Registry *prometheus.Registry // optional; /metrics is not mounted without it
}

// NewAppHandler returns the local presentation API.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}
	r.Get("/emergencies", handleListEmergencies(deps))
	r.Get("/emergencies/{id}", handleGetEmergency(deps))
	r.Get("/selection", handleGetSelection(deps))
	r.Put("/selection", handlePutSelection(deps))
	r.Delete("/selection", handleDeleteSelection(deps))
	r.Post("/refresh", handleRefresh(deps))
	r.Get("/events", handleEvents(deps))
	r.Get("/history", handleListHistory(deps))
	r.Get("/history/{id}", handleGetHistory(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// EmergencyView is a record as served to the presentation layer, with the
// display fallbacks already resolved.
type EmergencyView struct {
	ID        string           `json:"id"`
	Tail      string           `json:"tail"`
	Status    string           `json:"status,omitempty"`
	Priority  string           `json:"priority"`
	Nature    string           `json:"nature,omitempty"`
	Caller    string           `json:"caller"`
	CreatedAt *time.Time       `json:"created_at,omitempty"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
	Selected  bool             `json:"selected"`
	Record    emergency.Record `json:"record"`
}

func newEmergencyView(rec emergency.Record, selected string) EmergencyView {
	v := EmergencyView{
		ID:       rec.ID,
		Tail:     rec.Tail(),
		Status:   rec.Status,
		Priority: string(rec.EffectivePriority()),
		Nature:   rec.EffectiveNature(),
		Caller:   rec.DisplayCaller(),
		Selected: rec.ID == selected,
		Record:   rec,
	}
	if !rec.CreatedAt.IsZero() {
		t := rec.CreatedAt
		v.CreatedAt = &t
	}
	if !rec.UpdatedAt.IsZero() {
		t := rec.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

func handleListEmergencies(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := deps.Board.Records()
		selected := deps.Board.Selected()
		views := make([]EmergencyView, len(records))
		for i, rec := range records {
			views[i] = newEmergencyView(rec, selected)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetEmergency(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, ok := deps.Board.Get(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "emergency %q not found", id)
			return
		}
		writeJSON(w, http.StatusOK, newEmergencyView(rec, deps.Board.Selected()))
	}
}

type selectionBody struct {
	ID *string `json:"id"`
}

func selectionOf(id string) selectionBody {
	if id == "" {
		return selectionBody{}
	}
	return selectionBody{ID: &id}
}

func handleGetSelection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, selectionOf(deps.Board.Selected()))
	}
}

func handlePutSelection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req selectionBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ID == nil || *req.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id is required")
			return
		}

		err := deps.Board.Select(*req.ID)
		if errors.Is(err, board.ErrUnknownRecord) {
			httpError(w, http.StatusNotFound, "not_found", "emergency %q not found", *req.ID)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to select: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, selectionOf(deps.Board.Selected()))
	}
}

func handleDeleteSelection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Board.ClearSelection()
		writeJSON(w, http.StatusOK, selectionBody{})
	}
}

func handleRefresh(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Board.Refresh()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
	}
}

func handleListHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "history is not enabled")
			return
		}
		limit := parseIntParam(r, "limit", 20, 200)
		offset := parseIntParam(r, "offset", 0, 0)

		past, err := deps.History.ListPastEmergencies(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}
		views := make([]PastView, len(past))
		for i, p := range past {
			views[i] = newPastView(p)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "history is not enabled")
			return
		}
		id := chi.URLParam(r, "id")
		p, err := deps.History.GetPastEmergency(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "past emergency %q not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get past emergency: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, newPastView(p))
	}
}

// PastView is an archived emergency as served by the history routes.
type PastView struct {
	ID        string          `json:"id"`
	Status    string          `json:"status,omitempty"`
	Priority  string          `json:"priority,omitempty"`
	Caller    string          `json:"caller,omitempty"`
	Nature    string          `json:"nature,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	RemovedAt time.Time       `json:"removed_at"`
	Record    json.RawMessage `json:"record,omitempty"`
}

func newPastView(p storage.PastEmergency) PastView {
	v := PastView{
		ID:        p.ID,
		Status:    p.Status,
		Priority:  p.Priority,
		Caller:    p.Caller,
		Nature:    p.Nature,
		RemovedAt: p.RemovedAt,
	}
	if json.Valid([]byte(p.Payload)) {
		v.Record = json.RawMessage(p.Payload)
	}
	if !p.CreatedAt.IsZero() {
		t := p.CreatedAt
		v.CreatedAt = &t
	}
	if !p.UpdatedAt.IsZero() {
		t := p.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
