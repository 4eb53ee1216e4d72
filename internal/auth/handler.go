package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/operio-app/operio/internal"
	"github.com/operio-app/operio/internal/session"
	"github.com/operio-app/operio/internal/transport"
)

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

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteAppError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	tokens, err := h.Service.Login(dto, session.ClientMetaFromRequest(r))
	if err != nil {
		if _, ok := err.(ValidationError); ok {
			h.WriteAppError(w, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed))
			return
		}
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteAppError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	tokens, err := h.Service.Refresh(dto.RefreshToken)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.ExtractTokenFromHeader(r)
	if token == "" {
		h.WriteAppError(w, internal.ErrNoToken)
		return
	}

	if err := h.Service.Logout(token); err != nil {
		h.WriteAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AuthMiddleware authenticates the request and attaches the typed request
// context. Failures short-circuit with a structured 401 body; the route
// handler never runs without a principal.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := h.Service.Authenticate(
			r.Header.Get("Authorization"),
			session.ClientMetaFromRequest(r),
		)
		if err != nil {
			h.WriteAppError(w, err)
			return
		}

		ctx := internal.WithRequestContext(r.Context(), &internal.RequestContext{Principal: principal})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
