package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-service/internal/config"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
)

type Handlers struct {
	Auth          *handler.AuthHandler
	Profile       *handler.ProfileHandler
	PasswordReset *handler.PasswordResetHandler
	Health        http.HandlerFunc
	Metrics       http.Handler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, observer middleware.HTTPObserver, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.ClientIP(cfg.TrustProxyHeaders))
	r.Use(middleware.Logging)
	if observer != nil {
		r.Use(middleware.Metrics(observer))
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", h.Health)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/token", h.Auth.Login)
			auth.Post("/token/refresh", h.Auth.Refresh)
			auth.Post("/register", h.Auth.Register)
			auth.Post("/password-reset", h.PasswordReset.Request)
			auth.Post("/password-reset-confirm/{uid}/{token}", h.PasswordReset.Confirm)
			auth.Post("/password-reset-confirm/{uid}/{token}/", h.PasswordReset.Confirm)

			auth.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)

				protected.Post("/logout", h.Auth.Logout)
				protected.Get("/profile", h.Profile.Get)
				protected.Patch("/profile", h.Profile.Update)
				protected.Put("/profile", h.Profile.Update)
				protected.Put("/change-password", h.Profile.ChangePassword)
				protected.Patch("/change-password", h.Profile.ChangePassword)
			})
		})
	})

	return r
}
