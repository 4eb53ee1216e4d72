package user

import (
	"log/slog"
	"net/http"

	"github.com/operio-app/operio/internal"
	"github.com/operio-app/operio/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{BaseHandler: transport.NewBaseHandler(logger)}
}

// GetCurrentUser returns the principal attached by the auth middleware.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}
	h.WriteJSON(w, http.StatusOK, principal)
}
