package session

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/operio-app/operio/internal"
	"github.com/operio-app/operio/internal/transport"
)

// Handler exposes the session-management surface: the self-service routes
// under /sessions and the administrative routes under /admin.
type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     svc,
	}
}

// ListOwnSessions returns the caller's active sessions, most recently
// active first.
func (h *Handler) ListOwnSessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	sessions, err := h.Service.GetActiveSessions(principal.ID)
	if err != nil {
		h.Logger.Error("failed to list sessions", "user_id", principal.ID, "error", err)
		h.WriteAppError(w, internal.NewInternalError("failed to list sessions", err))
		return
	}

	current := HashToken(h.ExtractTokenFromHeader(r))
	type sessionView struct {
		Session
		Current bool `json:"current"`
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{Session: s, Current: s.TokenHash == current})
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

// EndOwnSession revokes one of the caller's other sessions.
func (h *Handler) EndOwnSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	sessionID := chi.URLParam(r, "id")
	currentToken := h.ExtractTokenFromHeader(r)

	if err := h.Service.EndOwnSession(principal.ID, sessionID, currentToken); err != nil {
		h.WriteAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EndOtherSessions revokes every session of the caller except the current
// one and reports how many were ended.
func (h *Handler) EndOtherSessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	count, err := h.Service.EndAllOtherSessions(principal.ID, h.ExtractTokenFromHeader(r), EndReasonRevoked)
	if err != nil {
		h.Logger.Error("failed to end other sessions", "user_id", principal.ID, "error", err)
		h.WriteAppError(w, internal.NewInternalError("failed to end sessions", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]int64{"ended": count})
}

// OwnStats returns the caller's session aggregate.
func (h *Handler) OwnStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	stats, err := h.Service.GetUserSessionStats(principal.ID)
	if err != nil {
		h.Logger.Error("failed to load session stats", "user_id", principal.ID, "error", err)
		h.WriteAppError(w, internal.NewInternalError("failed to load session stats", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, stats)
}

// AdminListSessions pages through sessions across all users.
func (h *Handler) AdminListSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, err := h.Service.ListAllSessions(limit, offset)
	if err != nil {
		h.Logger.Error("failed to list all sessions", "error", err)
		h.WriteAppError(w, internal.NewInternalError("failed to list sessions", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// AdminEndSession revokes any session by id.
func (h *Handler) AdminEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.AdminEndSession(chi.URLParam(r, "id")); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminEndUserSessions revokes every session of one user.
func (h *Handler) AdminEndUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		h.WriteAppError(w, internal.NewValidationError("invalid user id", internal.ErrCodeValidationFailed))
		return
	}

	count, err := h.Service.EndAllSessionsForUser(userID, EndReasonRevoked)
	if err != nil {
		h.Logger.Error("failed to end user sessions", "user_id", userID, "error", err)
		h.WriteAppError(w, internal.NewInternalError("failed to end sessions", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]int64{"ended": count})
}

// AdminCleanup triggers an immediate expiry sweep.
func (h *Handler) AdminCleanup(w http.ResponseWriter, r *http.Request) {
	count, err := h.Service.CleanExpiredSessions()
	if err != nil {
		h.Logger.Error("manual session cleanup failed", "error", err)
		h.WriteAppError(w, internal.NewInternalError("cleanup failed", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]int64{"ended": count})
}
