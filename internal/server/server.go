// Package server is the composition root: it wires stores, secrets,
// services and handlers together and mounts the route table.
//
// Two entry points share it. cmd/server runs it as a plain HTTP server with
// Start; cmd/lambda hands Handler to the API Gateway proxy adapter.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/flycalcio/guestapp/internal/auth"
	"github.com/flycalcio/guestapp/internal/config"
	"github.com/flycalcio/guestapp/internal/handler"
	"github.com/flycalcio/guestapp/internal/middleware"
	"github.com/flycalcio/guestapp/internal/notify"
	"github.com/flycalcio/guestapp/internal/repository"
	"github.com/flycalcio/guestapp/internal/service"
)

const msgInvalidRoute = "Invalid route or method."

// Server owns the router and the resources that must be released on
// shutdown.
type Server struct {
	router   chi.Router
	config   config.Config
	logger   *slog.Logger
	store    repository.Store
	notifier *notify.Async
}

// New wires deps into a ready-to-serve Server. The Server takes ownership
// of deps.Store and closes it in Close.
func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	next := deps.Notifier
	if next == nil {
		next = notify.NewLogNotifier(logger)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    deps.Store,
		notifier: notify.NewAsync(next, notify.DefaultTimeout, logger),
	}
	s.setupRoutes(deps)
	return s
}

// setupRoutes builds the services and mounts every route.
//
//	POST   /auth/register        public
//	POST   /auth/login           public
//	POST   /auth/google          public
//	POST   /auth/refresh         refresh token (cookie or body)
//	POST   /auth/logout          public
//	GET    /private/me           access token
//	GET    /private/events       access token
//	GET    /event                access token (ADMIN sees all)
//	POST   /event                ADMIN
//	PUT    /event                ADMIN
//	DELETE /event                ADMIN
//	POST   /event/assign         ADMIN
//	DELETE /event/assign         ADMIN
//
// Role requirements live in auth.DefaultPolicy and are enforced by the
// services, not here.
func (s *Server) setupRoutes(deps Deps) {
	tokens := NewTokenService(s.config, deps.Secrets)
	passwords := auth.NewPasswordServiceWithCost(s.config.BcryptCost)
	gate := auth.NewGate(nil)

	mode := service.ExternalLoginResolve
	if s.config.GoogleLegacyLogin {
		mode = service.ExternalLoginLegacy
	}

	authService := service.NewAuthService(s.store, tokens, passwords, deps.Identities, s.notifier, gate, mode, s.logger)
	eventService := service.NewEventService(s.store, s.store, s.store, gate, s.logger)

	authHandler := handler.NewAuthHandler(authService, handler.CookieConfig{
		Emit:        s.config.EmitCookies,
		RefreshPath: s.config.RefreshCookiePath,
		AccessTTL:   s.config.AccessTTL(),
		RefreshTTL:  s.config.RefreshTTL(),
	}, s.logger)
	eventHandler := handler.NewEventHandler(eventService, s.logger)
	privateHandler := handler.NewPrivateHandler(authService, eventService, s.logger)
	authn := auth.NewAuthenticator(tokens, s.config.TrustGatewayAuthorizer, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(s.config.CORSAllowedOrigins))

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteMsg(w, http.StatusNotFound, msgInvalidRoute)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteMsg(w, http.StatusMethodNotAllowed, msgInvalidRoute)
	})

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handler.WriteMsg(w, http.StatusOK, "ok")
	})

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/google", authHandler.HandleGoogleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(authn.RequireAuth)

		r.Get("/private/me", privateHandler.HandleMe)
		r.Get("/private/events", privateHandler.HandleEvents)

		r.Route("/event", func(r chi.Router) {
			r.Get("/", eventHandler.HandleList)
			r.Post("/", eventHandler.HandleCreate)
			r.Put("/", eventHandler.HandleUpdate)
			r.Delete("/", eventHandler.HandleDelete)
			r.Post("/assign", eventHandler.HandleAssign)
			r.Delete("/assign", eventHandler.HandleUnassign)
		})
	})
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close waits for pending notifications and closes the store.
func (s *Server) Close() error {
	s.notifier.Wait()
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Start serves HTTP until SIGINT or SIGTERM, then drains in-flight
// requests (up to 30s) and closes the store.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
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
			slog.Int("port", s.config.Port),
			slog.String("store", s.config.StoreDriver),
			slog.String("secrets", s.config.SecretDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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
