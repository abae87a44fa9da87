// Package crm предоставляет маршруты админки CRM.
package crm

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phoenix-invest/phoenix-crm/internal/http/handlers/auth/login"
	"github.com/phoenix-invest/phoenix-crm/internal/http/handlers/auth/register"
	"github.com/phoenix-invest/phoenix-crm/internal/http/handlers/client/create"
	"github.com/phoenix-invest/phoenix-crm/internal/http/handlers/client/health"
	"github.com/phoenix-invest/phoenix-crm/internal/http/handlers/client/list"
	"github.com/phoenix-invest/phoenix-crm/internal/http/handlers/client/read"
	"github.com/phoenix-invest/phoenix-crm/internal/http/handlers/client/remove"
	"github.com/phoenix-invest/phoenix-crm/internal/http/handlers/client/update"
	"github.com/phoenix-invest/phoenix-crm/internal/http/handlers/client/welcome"
	"github.com/phoenix-invest/phoenix-crm/internal/http/middlewarectx"
	authservice "github.com/phoenix-invest/phoenix-crm/internal/services/auth"
	clientservice "github.com/phoenix-invest/phoenix-crm/internal/services/client"
	"github.com/phoenix-invest/phoenix-crm/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты админки.
func RegisterRoutes(r chi.Router, logger *slog.Logger, clientService *clientservice.ClientService, authService *authservice.AuthService, db *repository.Storage) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)
		r.Get("/health", health.New(logger, db).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/clients", create.New(logger, clientService).ServeHTTP)
			r.Get("/clients/list", list.New(logger, clientService).ServeHTTP)
			r.Get("/clients/{id}", read.New(logger, clientService).ServeHTTP)
			r.Put("/clients/{id}", update.New(logger, clientService).ServeHTTP)
			r.Delete("/clients/{id}", remove.New(logger, clientService).ServeHTTP)
			r.Post("/clients/{id}/welcome", welcome.New(logger, clientService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
}
