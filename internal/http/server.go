package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

const (
	requestTimeout  = 30 * time.Second
	cleanupInterval = 10 * time.Minute
)

// Services are the operations the API exposes.
type Services struct {
	Projection   *services.ProjectionService
	Payments     *services.PaymentService
	Installments *services.InstallmentService
	Catalog      *services.CatalogService
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the server's middleware.
type Options struct {
	RateLimitPerMinute int
	CacheSize          int
	CacheTTL           time.Duration
	TrustedProxies     []string
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	svc         Services
	pinger      Pinger
	projections *projectionCache
	cacheMgr    *cache.Manager
	limiter     *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware
	logger      *applog.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc Services, pinger Pinger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, applog.FieldError, err)
		}
	}

	s := &Server{
		svc:         svc,
		pinger:      pinger,
		projections: newProjectionCache(svc.Projection, opts.CacheSize, opts.CacheTTL),
		cacheMgr:    cache.NewManager(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
		logger:   logger,
	}
	s.cacheMgr.Register(s.projections)
	s.cacheMgr.StartCleanup(cleanupInterval)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(s.detector.Middleware)
	r.Use(headers.Middleware)
	r.Use(middleware.Timeout(requestTimeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError().Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed.").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Use(s.limiter.Middleware(rateLimitKey, func(w http.ResponseWriter, r *http.Request) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldUserID, userIDFrom(r.Context()),
				applog.FieldPath, r.URL.Path)
			TooManyRequestsError().Write(w)
		}))
		r.Use(middleware.AllowContentType("application/json"))

		r.Route("/expenses", func(r chi.Router) {
			r.Use(applog.ComponentMiddleware(applog.ComponentProjection))
			r.Get("/", s.handleProject)
			r.Post("/", s.handleCreateExpense)
			r.Get("/months", s.handleAvailableMonths)
			r.Get("/summary", s.handleMonthSummary)
			r.Post("/mark-paid", s.handleReconcile(core.ActionMark))
			r.Post("/unmark-paid", s.handleReconcile(core.ActionUnmark))
			r.Get("/{id}", s.handleGetExpense)
			r.Put("/{id}", s.handleUpdateExpense)
			r.Delete("/{id}", s.handleDeleteExpense)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Use(applog.ComponentMiddleware(applog.ComponentCatalog))
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Put("/{id}", s.handleRenameCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
		})

		r.Route("/recurring-expenses", func(r chi.Router) {
			r.Use(applog.ComponentMiddleware(applog.ComponentCatalog))
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Get("/{id}", s.handleGetRule)
			r.Put("/{id}", s.handleUpdateRule)
			r.Delete("/{id}", s.handleDeleteRule)
			r.Post("/{id}/activate", s.handleSetRuleActive(true))
			r.Post("/{id}/deactivate", s.handleSetRuleActive(false))
		})

		r.Route("/installment-expenses", func(r chi.Router) {
			r.Use(applog.ComponentMiddleware(applog.ComponentInstallment))
			r.Get("/", s.handleListInstallments)
			r.Post("/", s.handleExpandInstallment)
			r.Get("/{id}", s.handleGetInstallment)
			r.Delete("/{id}", s.handleDeleteInstallment)
		})
	})

	return r
}

// requireUser rejects API requests without a usable user id.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := parseUserID(r)
		if err != nil {
			UnauthorizedError(err.Error()).Write(w)
			return
		}
		ctx := withUserID(r.Context(), userID)
		logger := applog.FromContext(ctx).WithUser(userID)
		ctx = context.WithValue(ctx, applog.LoggerContextKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func rateLimitKey(r *http.Request) string {
	return "user:" + itoa(userIDFrom(r.Context()))
}

// invalidate drops cached projections after a write by the user.
func (s *Server) invalidate(userID int64) {
	if n := s.projections.InvalidateUser(userID); n > 0 {
		s.logger.Debug("Projection cache invalidated", applog.FieldUserID, userID, applog.FieldCount, n)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "Store unavailable.").Write(w)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheMgr.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

type metricsView struct {
	Requests     trace.Metrics             `json:"requests"`
	RateLimit    ratelimit.Metrics         `json:"rate_limit"`
	Security     security.DetectionMetrics `json:"security"`
	CacheEntries int                       `json:"cache_entries"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, metricsView{
		Requests:     s.tracer.GetMetrics(),
		RateLimit:    s.limiter.GetMetrics(),
		Security:     s.detector.GetMetrics(),
		CacheEntries: s.projections.Size(),
	})
}
