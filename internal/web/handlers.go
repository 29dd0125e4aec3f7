package web

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/35services/slack-2-wordpress/internal/errors"
	"github.com/35services/slack-2-wordpress/internal/pipeline"
	"github.com/35services/slack-2-wordpress/internal/state"
)

// Handlers contains HTTP route handlers for the sync JSON API.
type Handlers struct {
	pipeline *pipeline.Pipeline
	tracker  *pipeline.Tracker
	store    *state.Store
	version  string
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleSync handles POST /sync — start a sync run in the background.
// A second request while a run is live gets 409 SYNC_BUSY.
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	// The run outlives the request, so it must not inherit the request
	// context.
	snap, err := h.pipeline.Start(context.Background())
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusAccepted, snap)
}

// HandleStatus handles GET /status — report the live or most recent run.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.tracker.Current()
	if !ok {
		renderJSON(w, http.StatusOK, map[string]any{"status": "idle"})
		return
	}
	renderJSON(w, http.StatusOK, snap)
}

// HandleMappings handles GET /mappings — list the thread→post table.
func (h *Handlers) HandleMappings(w http.ResponseWriter, r *http.Request) {
	entries := h.store.List()
	renderJSON(w, http.StatusOK, map[string]any{
		"mappings": entries,
		"count":    len(entries),
	})
}

// HandleMappingDetail handles GET /mappings/{fingerprint}.
func (h *Handlers) HandleMappingDetail(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fingerprint")
	if fp == "" {
		renderError(w, errors.NewInvalidRequest("fingerprint is required"))
		return
	}

	m, ok := h.store.Get(fp)
	if !ok {
		renderError(w, errors.NewNotFound(fp))
		return
	}
	renderJSON(w, http.StatusOK, state.Entry{Fingerprint: fp, Mapping: m})
}

// HandleMappingRemove handles DELETE /mappings/{fingerprint} — forget the
// mapping so the next sync creates a fresh document for the thread.
func (h *Handlers) HandleMappingRemove(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fingerprint")
	if fp == "" {
		renderError(w, errors.NewInvalidRequest("fingerprint is required"))
		return
	}

	if err := h.store.Remove(fp); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"removed":     true,
		"fingerprint": fp,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes a structured error response.
func renderError(w http.ResponseWriter, err error) {
	var sErr *errors.SyncError
	if !stderrors.As(err, &sErr) {
		sErr = errors.NewInternal(err)
	}
	renderJSON(w, sErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(sErr.Code),
			"message": sErr.Message,
			"status":  sErr.Status,
		},
	})
}
