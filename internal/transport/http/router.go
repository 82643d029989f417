package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-otp-auth/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthH := handler.NewHealthHandler(handler.Banner{
		Name:    cfg.AppName,
		Version: cfg.AppVersion,
		Env:     cfg.AppEnv,
	}, deps.Delivery)
	authH := handler.NewAuthHandler(deps.AuthService)

	r.Get("/", healthH.Root)
	r.Get("/health", healthH.Health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", authH.Signup)
		r.Post("/verify-otp", authH.VerifyOTP)
		r.Post("/resend-otp", authH.ResendOTP)
		r.Post("/login", authH.Login)
		r.Post("/logout", authH.Logout)
		r.Get("/test-email", healthH.TestEmail)

		if deps.TokenVerifier != nil {
			r.With(appmiddleware.Auth(deps.TokenVerifier)).Get("/me", authH.Me)
		}
	})

	return r
}
