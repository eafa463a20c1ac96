package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stratify/live-metrics/internal/auth"
)

const viewerCookieName = "dashboard_viewer"

// Handlers holds the HTTP handlers for the dashboard API.
type Handlers struct {
	registry    *Registry
	authManager *auth.Manager
}

// NewHandlers creates the handler set.
func NewHandlers(registry *Registry, authManager *auth.Manager) *Handlers {
	return &Handlers{registry: registry, authManager: authManager}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"time":     time.Now().UTC(),
		"sessions": h.registry.Len(),
	})
}

// GetDashboard handles GET /api/dashboard for the authenticated owner.
// An optional ?projectId=<id> narrows the aggregation.
func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
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
	respondJSON(w, http.StatusOK, ctrl.View())
}

// RefreshDashboard handles POST /api/dashboard/refresh: a manual fetch on the
// owner's session.
func (h *Handlers) RefreshDashboard(w http.ResponseWriter, r *http.Request) {
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
	ctrl.Refresh()
	respondJSON(w, http.StatusOK, ctrl.View())
}

// SetLiveState handles POST /api/dashboard/live. Only the authenticated owner
// can toggle; every subscribed session observes the change.
func (h *Handlers) SetLiveState(w http.ResponseWriter, r *http.Request) {
	sess := h.authManager.GetSession(r)
	if sess == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		IsLive bool `json:"isLive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Reuse the session the owner is already viewing (the broadcast topic is
	// owner-keyed either way) instead of minting a second poller.
	ctrl, err := h.registry.OwnerSession(r.Context(), sess.OwnerID, r.URL.Query().Get("projectId"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to open dashboard session")
		return
	}
	if err := ctrl.SetLive(r.Context(), req.IsLive); err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			respondError(w, http.StatusUnauthorized, "session expired")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to toggle live state")
		return
	}
	respondJSON(w, http.StatusOK, ctrl.View())
}

// GetPublicDashboard handles GET /public/dashboard/{viewID}. Anonymous
// viewers read through the proxy path; a target that disabled public viewing
// gets a 403, distinct from an owner with no campaigns who gets an empty 200.
func (h *Handlers) GetPublicDashboard(w http.ResponseWriter, r *http.Request) {
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

	view := ctrl.View()
	if view.Denied {
		respondJSON(w, http.StatusForbidden, view)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// viewerKey resolves the anonymous viewer's stable identity, minting a cookie
// on first sight so repeat requests land on the same session.
func (h *Handlers) viewerKey(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(viewerCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	key := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     viewerCookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return key
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
