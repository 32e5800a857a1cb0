// Package server is the composition root of the HTTP API: it mounts the
// handlers under /api, applies middleware and runs the listener with
// graceful shutdown.
//
//	main.go creates:  DB → Repository → Service → Handler
//	server.New wires: Handler → routes + middleware
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

	"github.com/sakif/app-builder/internal/auth"
	"github.com/sakif/app-builder/internal/config"
	"github.com/sakif/app-builder/internal/handler"
	"github.com/sakif/app-builder/internal/middleware"
	"github.com/sakif/app-builder/internal/ratelimit"
	"github.com/sakif/app-builder/internal/service"
)

// ShutdownTimeout bounds how long in-flight requests may take to finish.
const ShutdownTimeout = 30 * time.Second

// Deps are the services the routes call into. Limiter may be nil to
// disable rate limiting; DB may be nil in tests.
type Deps struct {
	DB        handler.Pinger
	Tokens    *auth.TokenService
	Limiter   ratelimit.Limiter
	Auth      *service.AuthService
	Projects  *service.ProjectService
	Snapshots *service.SnapshotService
	Deploys   *service.DeployService
	Exports   *service.ExportService
	Chat      *service.ChatService
	LLMName   string
	Storage   bool
}

// Server represents the HTTP server and its routes.
type Server struct {
	router *chi.Mux
	config config.ServerConfig
	logger *slog.Logger
	// closers run after the listener has drained, in order.
	closers []func(context.Context) error
}

func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(deps)
	return s
}

// OnShutdown registers fn to run after the listener stops.
func (s *Server) OnShutdown(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes. Middleware runs in the
// order it is added: request id, real ip, panic recovery, logging, CORS.
//
//	GET    /api/health
//	       /api/auth/...                      register, login, OAuth, me, logout
//	       /api/projects/...                  CRUD, generate, files, chat, preview, styles
//	       /api/projects/{id}/snapshots/...   history
//	       /api/projects/{id}/deploy[/stream] deploys
//	GET    /api/deployments/{id}/status
//	POST   /api/projects/{id}/export[/github]
//	POST   /api/github/push
//	POST   /api/generate/stream
//	POST   /api/chat/message
func (s *Server) setupRoutes(d Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS(s.config.CORSOrigins))

	var platforms []string
	if d.Deploys != nil {
		platforms = d.Deploys.Platforms()
	}

	healthHandler := handler.NewHealthHandler(d.DB, d.LLMName, platforms, d.Storage, s.logger)
	authHandler := handler.NewAuthHandler(d.Auth, d.Tokens.TTL(), s.config.FrontendURL, s.logger)
	projectHandler := handler.NewProjectHandler(d.Projects, s.logger)
	snapshotHandler := handler.NewSnapshotHandler(d.Projects, d.Snapshots, s.logger)
	deployHandler := handler.NewDeployHandler(d.Deploys, s.logger)
	exportHandler := handler.NewExportHandler(d.Exports, s.logger)
	chatHandler := handler.NewChatHandler(d.Chat, s.logger)

	requireAuth := auth.RequireAuth(d.Tokens)
	expensive := middleware.RateLimit(d.Limiter, "llm", s.logger)
	authLimit := middleware.RateLimit(d.Limiter, "auth", s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.With(authLimit).Post("/register", authHandler.HandleRegister)
			r.With(authLimit).Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			r.With(requireAuth).Get("/me", authHandler.HandleMe)

			r.Get("/github/login", authHandler.HandleOAuthLogin("github"))
			r.Get("/github/callback", authHandler.HandleOAuthCallback("github"))
			r.Get("/google", authHandler.HandleGoogleURL)
			r.Get("/google/login", authHandler.HandleOAuthLogin("google"))
			r.Get("/google/callback", authHandler.HandleOAuthCallback("google"))
		})

		r.With(auth.OptionalAuth(d.Tokens), expensive).Post("/chat/message", chatHandler.HandleMessage)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.With(expensive).Post("/generate/stream", projectHandler.HandleGenerateStream)
			r.Get("/deployments/{id}/status", deployHandler.HandleStatus)
			r.Post("/github/push", exportHandler.HandlePush)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.HandleList)
				r.Post("/", projectHandler.HandleCreate)
				r.With(expensive).Post("/generate", projectHandler.HandleGenerate)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", projectHandler.HandleGet)
					r.Delete("/", projectHandler.HandleDelete)
					r.Put("/files", projectHandler.HandlePutFiles)
					r.Post("/chat/plan", projectHandler.HandlePlan)
					r.With(expensive).Post("/chat/build", projectHandler.HandleBuild)
					r.Get("/preview", projectHandler.HandlePreview)
					r.Post("/styles", projectHandler.HandleSaveStyles)

					r.Get("/snapshots", snapshotHandler.HandleList)
					r.Post("/snapshots", snapshotHandler.HandleCreate)
					r.Get("/snapshots/compare", snapshotHandler.HandleCompare)
					r.Get("/snapshots/{sid}", snapshotHandler.HandleGet)
					r.Post("/snapshots/{sid}/restore", snapshotHandler.HandleRestore)

					r.Post("/deploy", deployHandler.HandleDeploy)
					r.Get("/deploy/stream", deployHandler.HandleDeployStream)

					r.Post("/export", exportHandler.HandleExport)
					r.Post("/export/github", exportHandler.HandleExportGitHub)
				})
			})
		})
	})
}

// Start serves until SIGINT/SIGTERM or until ctx is done, then drains
// in-flight requests for up to ShutdownTimeout and runs the closers.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d/api", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	for _, fn := range s.closers {
		if err := fn(closeCtx); err != nil {
			s.logger.Error("shutdown hook failed", slog.String("error", err.Error()))
		}
	}
	if runErr == nil {
		s.logger.Info("server stopped gracefully")
	}
	return runErr
}
