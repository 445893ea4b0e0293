package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shipment-tracker/internal/auth"
	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/ingest"
	"shipment-tracker/internal/logger"
	"shipment-tracker/internal/store"
)

type Handler struct {
	gateway *ingest.Gateway
	store   store.Store
	log     *logger.Logger
}

func NewHandler(gateway *ingest.Gateway, st store.Store, log *logger.Logger) *Handler {
	return &Handler{gateway: gateway, store: st, log: log}
}

// IngestLocation handles POST /api/v1/shipments/{id}/location.
func (h *Handler) IngestLocation(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}

	var in ingest.SampleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	resp, err := h.gateway.Ingest(r.Context(), chi.URLParam(r, "id"), in, identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) LatestLocation(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	sample, err := h.store.LatestSample(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// LocationHistory handles GET .../location/history?from=&to= with
// RFC3339 bounds, both optional.
func (h *Handler) LocationHistory(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad 'from' timestamp"})
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad 'to' timestamp"})
			return
		}
		to = t
	}

	samples, err := h.store.SampleHistory(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (h *Handler) ActiveAdvisories(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	advisories, err := h.store.ActiveAdvisories(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advisories)
}

func (h *Handler) AcknowledgeAdvisory(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	ok, err := h.store.AcknowledgeAdvisory(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "advisoryID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "advisory not found or already acknowledged"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"acknowledged": true})
}

// CompleteTrip handles POST .../complete: marks the shipment delivered
// and computes its route summary.
func (h *Handler) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	summary, err := h.gateway.CompleteTrip(r.Context(), chi.URLParam(r, "id"), identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) RouteSummary(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	summary, err := h.store.LatestRouteSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorized applies the shipment access rule for the read surface.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) bool {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return false
	}
	sh, err := h.store.GetShipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return false
	}
	if err := auth.Authorize(identity, sh); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not authorized for this shipment"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrInsufficientData):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
