package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-catalog/internal/auth"
	"github.com/Clark-Hu/movie-catalog/internal/config"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
	"github.com/Clark-Hu/movie-catalog/internal/review"
)

// HealthChecker is satisfied by *store.Store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Services are the domain components the handlers delegate to.
type Services struct {
	Auth   *auth.Service
	Guard  *auth.Guard
	Ledger *review.Ledger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	health  HealthChecker
	repo    *repository.Repository
	auth    *auth.Service
	guard   *auth.Guard
	ledger  *review.Ledger
	logger  zerolog.Logger
	router  chi.Router
	httpSrv *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, health HealthChecker, repo *repository.Repository, svc Services, logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(requestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	s := &Server{
		cfg:    cfg,
		health: health,
		repo:   repo,
		auth:   svc.Auth,
		guard:  svc.Guard,
		ledger: svc.Ledger,
		logger: logger,
		router: r,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())

	authenticated := s.guard.Middleware(s.respondAppError)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(s.authRateLimit())
				r.Post("/register", s.handleRegister)
				r.Post("/login", s.handleLogin)
			})
			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Get("/me", s.handleMe)
				if s.auth.RevocationEnabled() {
					r.Post("/logout", s.handleLogout)
				}
			})
		})

		r.Route("/movies", func(r chi.Router) {
			r.Get("/", s.handleListMovies)
			r.Get("/{id}", s.handleGetMovie)
			r.Get("/{id}/rating", s.handleGetRating)
			r.Group(func(r chi.Router) {
				r.Use(authenticated, requireAdmin(s.respondAppError))
				r.Post("/", s.handleCreateMovie)
				r.Put("/{id}", s.handleUpdateMovie)
				r.Delete("/{id}", s.handleDeleteMovie)
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/", s.handleAddReview)
			r.Put("/{id}", s.handleUpdateReview)
			r.Delete("/{id}", s.handleDeleteReview)
		})
	})
}

// authRateLimit buckets requests by RemoteAddr and route. RemoteAddr only
// reflects forwarding headers when TrustProxyHeaders installs RealIP.
func (s *Server) authRateLimit() func(http.Handler) http.Handler {
	window := time.Duration(s.cfg.AuthRateLimitWindowSecs) * time.Second
	return httprate.Limit(
		s.cfg.AuthRateLimitRequests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.respondJSON(w, http.StatusTooManyRequests, errorResponse{
				Error: "Too many requests",
				Code:  "RATE_LIMITED",
			})
		}),
	)
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.HealthCheck(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
