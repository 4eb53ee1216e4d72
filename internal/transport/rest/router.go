package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/operio-app/operio/internal/auth"
	"github.com/operio-app/operio/internal/rbac"
	"github.com/operio-app/operio/internal/session"
	"github.com/operio-app/operio/internal/transport/middleware"
	"github.com/operio-app/operio/internal/transport/swagger"
	"github.com/operio-app/operio/internal/user"
)

// RegisterAllRoutes wires the authentication gate, the role/permission
// guards and the session-management surface onto the router.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	authHandler *auth.Handler,
	sessionHandler *session.Handler,
	userHandler *user.Handler,
	rbacHandler *rbac.Handler,
	guards *rbac.Guards,
	allowedOrigins string,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	// global middleware
	router.Use(middleware.CORSWithOrigins(allowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	// OpenAPI spec and Swagger UI outside the API prefix
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", authHandler.Login)
			sr.Post("/refresh", authHandler.RefreshToken)
			sr.Post("/logout", authHandler.Logout)
		})

		// everything below requires a principal
		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)

			pr.Get("/users/me", userHandler.GetCurrentUser)

			// self-service session management
			pr.Route("/sessions", func(sr chi.Router) {
				sr.Get("/", sessionHandler.ListOwnSessions)
				sr.Get("/stats", sessionHandler.OwnStats)
				sr.Post("/end-others", sessionHandler.EndOtherSessions)
				sr.Delete("/{id}", sessionHandler.EndOwnSession)
			})

			// administrative surface
			pr.Route("/admin", func(ar chi.Router) {
				ar.Group(func(sr chi.Router) {
					sr.Use(guards.RequirePermission("sessions.admin"))
					sr.Get("/sessions", sessionHandler.AdminListSessions)
					sr.Delete("/sessions/{id}", sessionHandler.AdminEndSession)
					sr.Post("/sessions/cleanup", sessionHandler.AdminCleanup)
					sr.Post("/users/{userID}/sessions/end-all", sessionHandler.AdminEndUserSessions)
				})

				ar.Group(func(rr chi.Router) {
					rr.Use(guards.RequirePermission("permissions.manage"))
					rr.Get("/roles/{role}/permissions", rbacHandler.GetRolePermissions)
					rr.Put("/roles/{role}/permissions", rbacHandler.ReplaceRolePermissions)
				})
			})
		})
	})
}
