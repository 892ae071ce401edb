package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"privacyx/internal/auth"
	"privacyx/internal/logging"
)

// NewRouter wires the public pages, the session-protected pages and the
// operational endpoints.
func NewRouter(authHandler *AuthHandler, askHandler *AskHandler) http.Handler {
	logrus.Debug("setting up HTTP router")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)

	// --- Public Routes ---
	r.Get("/", authHandler.LoginPage)
	r.Post("/login", authHandler.Login)
	r.Get("/signup", authHandler.SignupPage)
	r.Post("/signup", authHandler.Signup)
	r.Get("/logout", authHandler.Logout)
	r.Post("/ask", askHandler.Ask)
	r.Handle("/static/*", StaticHandler())
	logrus.Info("public routes registered")

	// --- Protected Routes ---
	r.Group(func(protected chi.Router) {
		protected.Use(auth.RequireSession(authHandler.Users, authHandler.Unauthorized))
		protected.Get("/home", authHandler.Home)
	})
	logrus.Info("protected routes registered")

	// --- Operational Routes ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
