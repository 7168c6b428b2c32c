// Package server wires handlers, middleware and routes into an HTTP server
// and runs it with graceful shutdown.
//
// It is the composition root for the HTTP side: cmd/snipspace builds the
// storage and the services, and New only decides which URL reaches which
// handler behind which middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/auth"
	"github.com/sakif/snipspace/internal/handler"
	"github.com/sakif/snipspace/internal/metrics"
	"github.com/sakif/snipspace/internal/middleware"
	"github.com/sakif/snipspace/internal/service"
)

type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SecureCookies   bool
}

// Deps are the collaborators the routes need. Health may be nil.
type Deps struct {
	Engine  *service.Engine
	Tokens  *auth.TokenService
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Health  func(ctx context.Context) error
}

type Server struct {
	router chi.Router
	config Config
	logger *zap.Logger
}

func New(cfg Config, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: d.Logger,
	}
	s.setupRoutes(d)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz, /metrics
//	POST   /api/users                     signup
//	POST   /api/sessions                  login
//	DELETE /api/sessions                  logout
//	GET|PATCH|DELETE /api/me
//	GET    /api/tree?path=                folder children
//	GET    /api/tree/node?path=           resolve
//	GET    /api/tree/verify               consistency report
//	POST   /api/folders                   create folder
//	DELETE /api/folders?path=             remove folder subtree
//	POST   /api/folders/move, /api/folders/rename
//	GET|POST /api/snippets                list / create
//	GET    /api/snippets/by-path?path=
//	GET|PATCH|DELETE /api/snippets/{id}
//	GET|POST|DELETE /api/snippets/{id}/annotations
//	GET    /api/snippets/{id}/anchors     stale anchors
//	GET|PATCH|DELETE /api/annotations/{id}
//
// MIDDLEWARE ORDER MATTERS: RequestID first so the logger can read it,
// Recoverer last so a panic still gets logged as a 500.
func (s *Server) setupRoutes(d Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health(r.Context()); err != nil {
				s.logger.Warn("health check failed", zap.Error(err))
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", d.Metrics.Handler())

	e := d.Engine
	authService := service.NewAuthService(e.Users, d.Tokens, s.logger)
	users := handler.NewUserHandler(authService, e.Users, d.Tokens, s.config.SecureCookies, s.logger)
	folders := handler.NewFolderHandler(e.Namespaces)
	snippets := handler.NewSnippetHandler(e.Snippets)
	annotations := handler.NewAnnotationHandler(e.Annotations, e.Snippets)

	requireAuth := auth.RequireAuth(d.Tokens)
	optionalAuth := auth.OptionalAuth(d.Tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/users", users.HandleSignup)
		r.Post("/sessions", users.HandleLogin)
		r.Delete("/sessions", users.HandleLogout)

		// Public reads: anonymous callers see public snippets only.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/snippets/{id}", snippets.HandleGet)
			r.Get("/snippets/{id}/annotations", annotations.HandleListBySnippet)
			r.Get("/snippets/{id}/anchors", annotations.HandleAnchors)
			r.Get("/annotations/{id}", annotations.HandleGet)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", users.HandleMe)
			r.Patch("/me", users.HandleUpdate)
			r.Delete("/me", users.HandleDelete)

			r.Get("/tree", folders.HandleTree)
			r.Get("/tree/node", folders.HandleResolve)
			r.Get("/tree/verify", folders.HandleVerify)
			r.Post("/folders", folders.HandleCreate)
			r.Delete("/folders", folders.HandleRemove)
			r.Post("/folders/move", folders.HandleMove)
			r.Post("/folders/rename", folders.HandleRename)

			r.Get("/snippets", snippets.HandleList)
			r.Post("/snippets", snippets.HandleCreate)
			r.Get("/snippets/by-path", snippets.HandleGetByPath)
			r.Patch("/snippets/{id}", snippets.HandleUpdate)
			r.Delete("/snippets/{id}", snippets.HandleDelete)

			r.Post("/snippets/{id}/annotations", annotations.HandleCreate)
			r.Delete("/snippets/{id}/annotations", annotations.HandleRemoveBySnippet)
			r.Patch("/annotations/{id}", annotations.HandleUpdate)
			r.Delete("/annotations/{id}", annotations.HandleDelete)
		})
	})
}

// Start serves until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then stops accepting connections and waits up to
// ShutdownTimeout for in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			zap.Int("port", s.config.Port),
			zap.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
