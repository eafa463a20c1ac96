package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stratify/live-metrics/internal/livesync"
)

// Uses SSE (Server-Sent Events) rather than websockets; the stream is
// one-directional and SSE needs no extra dependency.
const (
	sseSampleInterval = time.Second
	sseHeartbeat      = 25 * time.Second
)

// StreamDashboard handles GET /api/dashboard/events: a live stream of the
// owner's dashboard view. A snapshot is emitted whenever the fetched payload
// or the lifecycle state changes.
func (h *Handlers) StreamDashboard(w http.ResponseWriter, r *http.Request) {
	sess := h.authManager.GetSession(r)
	if sess == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctrl, err := h.registry.OwnerSession(r.Context(), sess.OwnerID, r.URL.Query().Get("projectId"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to open dashboard session")
		return
	}
	h.streamView(w, r, ctrl)
}

// StreamPublicDashboard handles GET /public/dashboard/{viewID}/events for
// anonymous viewers.
func (h *Handlers) StreamPublicDashboard(w http.ResponseWriter, r *http.Request) {
	viewID := chi.URLParam(r, "viewID")
	if viewID == "" {
		respondError(w, http.StatusBadRequest, "missing view id")
		return
	}

	ctrl, err := h.registry.ViewerSession(r.Context(), viewID, h.viewerKey(w, r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to open dashboard session")
		return
	}
	h.streamView(w, r, ctrl)
}

func (h *Handlers) streamView(w http.ResponseWriter, r *http.Request, ctrl *livesync.Controller) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Initial snapshot, then deltas.
	last := ctrl.View()
	if !writeSSE(w, flusher, last) {
		return
	}

	sample := time.NewTicker(sseSampleInterval)
	defer sample.Stop()
	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-sample.C:
			view := ctrl.View()
			if view.State == last.State && view.FetchedAt.Equal(last.FetchedAt) && view.Stale == last.Stale {
				continue
			}
			last = view
			if !writeSSE(w, flusher, view) {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, v livesync.DashboardView) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[API] failed to encode dashboard view: %v", err)
		return false
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return false
	}
	if _, err := w.Write(data); err != nil {
		return false
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
