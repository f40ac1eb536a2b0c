package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bher20/carparkmanager/internal/api/swagger"
	"github.com/bher20/carparkmanager/internal/carparks"
	"github.com/bher20/carparkmanager/internal/cron"
	"github.com/bher20/carparkmanager/internal/metrics"
)

// Refresher runs refresh cycles on demand and exposes scheduler state.
type Refresher interface {
	RunOnce(ctx context.Context) (*carparks.Snapshot, error)
	Status() cron.Status
}

// ServerOption configures the router built by NewRouter.
type ServerOption func(*server)

type server struct {
	svc         *carparks.Service
	refresher   Refresher
	log         *zap.Logger
	middlewares []func(http.Handler) http.Handler
}

// WithRefresher enables POST /refresh and scheduler details on /status.
func WithRefresher(r Refresher) ServerOption {
	return func(s *server) {
		s.refresher = r
	}
}

// WithLogger sets the logger used for request logs and handler errors.
func WithLogger(log *zap.Logger) ServerOption {
	return func(s *server) {
		s.log = log
	}
}

// WithMiddlewares appends middleware after the defaults.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(s *server) {
		s.middlewares = append(s.middlewares, mw...)
	}
}

// NewRouter wires the car park API, health probes and metrics.
func NewRouter(svc *carparks.Service, opts ...ServerOption) *chi.Mux {
	s := &server{svc: svc, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(s.log))
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	for _, mw := range s.middlewares {
		r.Use(mw)
	}

	// Metrics endpoint.
	r.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	r.Get("/healthz", s.handleHealth("ok"))
	r.Get("/livez", s.handleHealth("live"))
	r.Get("/readyz", s.handleReady)
	r.Get("/status", s.handleStatus)
	if s.refresher != nil {
		r.Post("/refresh", s.handleRefresh)
	}

	r.Get("/parking-spaces", s.handleParkingSpaces)
	r.Get("/all-carparks", s.handleAllCarParks)

	r.Mount("/swagger", swagger.Router())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *server) handleHealth(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

// handleReady reports ready once the first snapshot has been published.
func (s *server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.svc.Snapshot(); err != nil {
		writeError(w, http.StatusServiceUnavailable, msgNoSnapshot)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// metricsMiddleware records request counts, latencies and error codes keyed
// by the matched route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		metrics.RequestsTotal.WithLabelValues(path).Inc()
		metrics.RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
		if status := ww.Status(); status >= http.StatusBadRequest {
			metrics.RequestErrorsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
		}
	})
}

func loggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Debug("api: request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
