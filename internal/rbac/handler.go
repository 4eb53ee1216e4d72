package rbac

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/operio-app/operio/internal"
	"github.com/operio-app/operio/internal/transport"
)

// Handler exposes the admin surface of the permission matrix.
type Handler struct {
	*transport.BaseHandler
	matrix *Matrix
}

func NewHandler(matrix *Matrix, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		matrix:      matrix,
	}
}

type replacePermissionsDTO struct {
	Permissions []string `json:"permissions"`
}

// GetRolePermissions lists the permissions currently granted to a role.
func (h *Handler) GetRolePermissions(w http.ResponseWriter, r *http.Request) {
	role := Role(chi.URLParam(r, "role"))
	if !IsKnown(role) {
		h.WriteAppError(w, internal.NewValidationError("unknown role", internal.ErrCodeUnknownRole))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"role":        role,
		"permissions": h.matrix.PermissionsForRole(role),
	})
}

// ReplaceRolePermissions replaces the full permission set for one role.
// This is the only request-mutable path into the matrix.
func (h *Handler) ReplaceRolePermissions(w http.ResponseWriter, r *http.Request) {
	role := Role(chi.URLParam(r, "role"))
	if !IsKnown(role) {
		h.WriteAppError(w, internal.NewValidationError("unknown role", internal.ErrCodeUnknownRole))
		return
	}

	var dto replacePermissionsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteAppError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	if err := h.matrix.ReplaceForRole(role, dto.Permissions); err != nil {
		h.Logger.Error("failed to replace role permissions", "role", role, "error", err)
		h.WriteAppError(w, internal.NewInternalError("failed to update permissions", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"role":        role,
		"permissions": h.matrix.PermissionsForRole(role),
	})
}
