package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/careconnect/identity/internal/account"
	"github.com/careconnect/identity/internal/auth"
	"github.com/careconnect/identity/internal/config"
	"github.com/careconnect/identity/internal/httputil"
	"github.com/careconnect/identity/internal/logging"
	"github.com/careconnect/identity/internal/verification"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(
	cfg *config.Config,
	authHandler *auth.Handler,
	verificationHandler *verification.Handler,
	authMiddleware *auth.Middleware,
	logger *logging.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	r.Use(SecurityHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Compress(5))

	r.Get("/health", handleHealth)

	// Swagger UI stays out of production builds entirely.
	if cfg.Server.IsDevelopment() {
		logger.Info("swagger UI enabled at /swagger/")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Post("/change-password", authHandler.ChangePassword)
		})
	})

	r.Route("/verification", func(r chi.Router) {
		r.Post("/send-code", verificationHandler.SendCode)
		r.Post("/resend-code", verificationHandler.ResendCode)
		r.Post("/verify-email", verificationHandler.VerifyEmail)
	})

	r.Route("/ngo/documents", func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)
		r.Get("/status", verificationHandler.DocumentStatus)
		r.Post("/resubmit", verificationHandler.ResubmitDocuments)
	})

	r.Route("/admin/accounts/{id}", func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)
		r.Use(authMiddleware.RequireRole(account.RolePlatformAdmin))
		r.Post("/documents/review", verificationHandler.ReviewDocument)
		r.Post("/verification-status", verificationHandler.SetOverallStatus)
		r.Post("/account-status", authHandler.SetAccountStatus)
	})

	return r
}

// handleHealth is a simple health check endpoint.
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /health [get]
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, map[string]string{"status": "api is running"}, http.StatusOK)
}
