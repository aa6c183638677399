package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dom/learnhub-api/internal/api/handlers"
	"github.com/dom/learnhub-api/internal/api/middleware"
	"github.com/dom/learnhub-api/internal/api/respond"
	"github.com/dom/learnhub-api/internal/config"
	"github.com/dom/learnhub-api/internal/repository"
	"github.com/dom/learnhub-api/internal/service"
	"github.com/dom/learnhub-api/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(services *service.Services, hub *websocket.Hub, store repository.Store, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Fail(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Fail(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	healthHandler := handlers.NewHealthHandler(store)
	authHandler := handlers.NewAuthHandler(services.Auth, cfg)
	adminHandler := handlers.NewAdminHandler(services.Auth, services.UserStatus, store.Repos().AuditLog)
	uploadHandler := handlers.NewUploadHandler(services.Uploads)
	wsHandler := handlers.NewWebSocketHandler(hub, services.Tokens, cfg.CORSOrigins)

	requireAuth := middleware.Auth(services.Tokens)

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Get("/health", healthHandler.Live)
		r.Get("/health/ready", healthHandler.Ready)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(15 * time.Second))
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/refresh", authHandler.Refresh)
				r.Post("/password-reset/request", authHandler.RequestPasswordReset)
				r.Post("/password-reset/confirm", authHandler.ConfirmPasswordReset)
			})

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.Me)
				r.Post("/logout", authHandler.Logout)
				r.Post("/logout-all", authHandler.LogoutAll)
				r.Get("/sessions", authHandler.ListSessions)
				r.Delete("/sessions/{id}", authHandler.RevokeSession)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/uploads/presign", uploadHandler.Presign)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireAdmin)
			r.Patch("/users/{id}/status", adminHandler.UpdateUserStatus)
			r.Get("/users/{id}/sessions", adminHandler.ListUserSessions)
			r.Delete("/sessions/{id}", adminHandler.RevokeSession)
			r.Get("/audit-logs", adminHandler.ListAuditLogs)
		})

		// WebSocket endpoint
		r.Get("/ws", wsHandler.Handle)
	})

	return r
}
