// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware,
// and routes. It is the composition root: every dependency is constructed
// and injected here (or in main), rather than scattered across the
// codebase.
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (we can create a test server without running main)
// - Reusable (multiple entry points could use the same wiring)
// - Clean (main.go stays minimal — load config, start the server)
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/learnquest/internal/auth"
	"github.com/sakif/learnquest/internal/config"
	"github.com/sakif/learnquest/internal/handler"
	"github.com/sakif/learnquest/internal/mailer"
	"github.com/sakif/learnquest/internal/middleware"
	"github.com/sakif/learnquest/internal/model"
	sqliteRepo "github.com/sakif/learnquest/internal/repository/sqlite"
	"github.com/sakif/learnquest/internal/service"
)

// Server owns the HTTP router and the resources behind it.
//
// RESOURCE MANAGEMENT:
// The server owns the database connection. When it shuts down, the
// connection must be closed to flush the WAL and release the file lock —
// Start() handles that during graceful shutdown.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the whole dependency graph:
//
//	config → sqlite.DB → UserDB (store, owns hashing)
//	       → TokenService / OTPService / PasswordService
//	       → Mailer (SMTP, or log-only when no relay is configured)
//	       → AuthService → handlers → routes
//
// Each layer only receives what it needs: the service gets the repository
// INTERFACE (not the sqlite type), handlers get the service, and nothing
// below main ever reads the environment.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close() // clean up if wiring fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes wires middleware, dependencies, and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST /api/auth/register         → create account, start session
//	POST /api/auth/login            → verify credentials, start session
//	POST /api/auth/forgot-password  → mail a reset code
//	POST /api/auth/reset-password   → redeem the code, replace password
//	POST /api/auth/logout           → clear the session cookie
//	GET  /auth/github/login         → GitHub OAuth (optional)
//	GET  /auth/github/callback      → GitHub OAuth (optional)
//	GET  /api/me                    → current profile        [auth]
//	PATCH /api/me                   → update display name    [auth]
//	GET  /api/admin/users           → account roster         [auth + admin]
//
// MIDDLEWARE ORDER MATTERS:
// RequestID → RealIP → Recoverer → Logger run on every request, in that
// order. RequireAuth/RequireRole are attached per route group below —
// authentication before authorization, both before the handler.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID) // X-Request-ID for tracing
	s.router.Use(chimiddleware.RealIP)    // real client IP from proxy headers
	s.router.Use(chimiddleware.Recoverer) // panics become 500s, not crashes
	s.router.Use(middleware.Logger(s.logger))

	// === CREDENTIAL PRIMITIVES ===
	tokens, err := auth.NewTokenService(s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.cfg.HashCost)
	otp := auth.NewOTPService(s.cfg.OTPTTL)

	// === MAILER ===
	// No SMTP host configured → log-only mailer. The server still runs and
	// the reset flow still works (codes appear in the log), which is what
	// you want in development and never in production.
	var mail mailer.Mailer
	if s.cfg.SMTP.Host != "" {
		mail, err = mailer.NewSMTP(mailer.SMTPConfig{
			Host:     s.cfg.SMTP.Host,
			Port:     s.cfg.SMTP.Port,
			Username: s.cfg.SMTP.Username,
			Password: s.cfg.SMTP.Password,
			From:     s.cfg.SMTP.From,
		})
		if err != nil {
			return fmt.Errorf("creating SMTP mailer: %w", err)
		}
	} else {
		s.logger.Warn("SMTP_HOST not set — emails will only be logged")
		mail = mailer.NewLog(s.logger)
	}

	// === STORE AND SERVICE ===
	users := s.db.Users(passwords)
	authService := service.NewAuthService(users, tokens, passwords, otp, mail, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.cfg.TokenTTL, s.logger)
	adminHandler := handler.NewAdminHandler(authService, s.logger)

	// === PUBLIC ROUTES ===
	s.router.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/forgot-password", authHandler.HandleForgotPassword)
		r.Post("/reset-password", authHandler.HandleResetPassword)
		r.Post("/logout", authHandler.HandleLogout)
	})

	// GitHub OAuth is optional — routes only exist when configured.
	if s.cfg.GitHub.ClientID != "" {
		github := auth.NewGitHubProvider(
			s.cfg.GitHub.ClientID,
			s.cfg.GitHub.ClientSecret,
			s.cfg.GitHub.CallbackURL,
		)
		oauthHandler := handler.NewOAuthHandler(github, authService, authHandler, s.logger)
		s.router.Get("/auth/github/login", oauthHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", oauthHandler.HandleGitHubCallback)
	} else {
		s.logger.Info("GITHUB_CLIENT_ID not set — OAuth login disabled")
	}

	// === PROTECTED ROUTES ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, users))
		r.Get("/api/me", authHandler.HandleMe)
		r.Patch("/api/me", authHandler.HandleUpdateMe)

		// Admin routes stack a role gate on top of authentication.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(model.RoleAdmin))
			r.Get("/api/admin/users", adminHandler.HandleListUsers)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
