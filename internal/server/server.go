package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/conduitdb/conduit/internal/config"
	"github.com/conduitdb/conduit/internal/handler"
	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/openapi"
	"github.com/conduitdb/conduit/internal/server/middleware"
	"github.com/conduitdb/conduit/internal/service"
	"github.com/conduitdb/conduit/internal/store"
)

// Version is the reported service version, overridable at build time with
// -ldflags "-X github.com/conduitdb/conduit/internal/server.Version=...".
var Version = "1.0.0"

// Server is the top-level HTTP server. It owns the Chi router, the backing
// store, and the credential services.
type Server struct {
	cfg        config.Settings
	router     chi.Router
	store      *store.Store
	keys       *service.KeyService
	tokens     *service.TokenService
	apiDoc     *openapi3.T
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg config.Settings, st *store.Store, keys *service.KeyService, tokens *service.TokenService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  st,
		keys:   keys,
		tokens: tokens,
		logger: logger,
	}
	baseURL := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.apiDoc = openapi.Document(baseURL, Version)
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.Limits.Requests > 0 {
		r.Use(middleware.RateLimit(s.cfg.Limits.Requests, s.cfg.RateLimitWindow()))
	}

	// --- Unauthenticated surface ---
	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", s.handleOpenAPI)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		authHandler := handler.NewAuthHandler(s.tokens, s.cfg.AccessTokenTTL())
		sysHandler := handler.NewSystemHandler(s.store, s.keys)
		histHandler := handler.NewHistoryHandler(s.store)

		// Session endpoints: login is unauthenticated, logout self-authenticated.
		r.Post("/auth/session", authHandler.Login)
		r.Delete("/auth/session", authHandler.Logout)

		// Everything else requires a verified credential.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.keys, s.tokens, s.cfg.Auth.APIKeysEnabled))

			r.With(middleware.RequireScopes(s.logger, model.ScopeRead)).
				Get("/history", histHandler.ListHistory)
			r.With(middleware.RequireScopes(s.logger, model.ScopeWrite)).
				Post("/history", histHandler.RecordHistory)

			r.Route("/system", func(r chi.Router) {
				r.Use(middleware.RequireScopes(s.logger, model.ScopeAdmin))

				r.Get("/user", sysHandler.ListUsers)
				r.Post("/user", sysHandler.CreateUser)
				r.Get("/user/{username}", sysHandler.GetUser)
				r.Put("/user/{username}", sysHandler.UpdateUser)
				r.Delete("/user/{username}", sysHandler.DeleteUser)

				r.Get("/api-key", sysHandler.ListAPIKeys)
				r.Post("/api-key", sysHandler.CreateAPIKey)
				r.Delete("/api-key/{keyId}", sysHandler.RevokeAPIKey)
				r.Put("/api-key/{keyId}/rate-limit", sysHandler.UpdateAPIKeyRateLimit)
			})
		})
	})

	s.router = r
}

// handleRoot reports service identity and mode.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"service": "conduit",
		"version": Version,
		"mode":    s.cfg.Server.Mode,
	})
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the backing store is
// reachable, 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if err := s.store.Ping(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// handleOpenAPI serves the static API description.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.apiDoc)
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "mode", s.cfg.Server.Mode)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	timeout, err := s.cfg.ShutdownTimeout()
	if err != nil {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
