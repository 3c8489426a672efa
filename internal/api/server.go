package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/session"
)

// Sessions hands out the live engine of a provider.
type Sessions interface {
	Get(ctx context.Context, providerID int64) (*session.Session, error)
}

type Config struct {
	Address         string
	APIKey          string
	RateLimitPerSec float64
	RateLimitBurst  int
	// TrustedProxies lists addresses or CIDR prefixes whose X-Forwarded-For is honoured.
	TrustedProxies []string
	RequestTimeout time.Duration
}

// HTTPServer exposes the availability engines over JSON.
type HTTPServer struct {
	cfg      Config
	sessions Sessions
	limiter  *clientLimiter
	ready    func(ctx context.Context) error
	logger   *zerolog.Logger
	now      func() time.Time
	server   *http.Server
}

func NewHTTPServer(cfg Config, sessions Sessions, logger *zerolog.Logger) *HTTPServer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	s := &HTTPServer{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
	if cfg.RateLimitPerSec > 0 {
		trusted, err := parseTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			logger.Warn().Err(err).Msg("ignoring trusted proxies, keying rate limits on remote address")
			trusted = nil
		}
		s.limiter = newClientLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst, trusted)
	}
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// UseReadiness sets the dependency check behind /readyz.
func (s *HTTPServer) UseReadiness(check func(ctx context.Context) error) {
	s.ready = check
}

// Handler returns the routed handler with auth, rate limiting and timeouts applied.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.route(mux, "GET /api/providers/{id}/availability", "availability", s.handleAvailability)
	s.route(mux, "GET /api/providers/{id}/bookable", "bookable", s.handleBookable)
	s.route(mux, "POST /api/providers/{id}/days/{date}/toggle", "toggle_day", s.handleToggleDay)
	s.route(mux, "POST /api/providers/{id}/days/{date}/slots/{slotID}/toggle", "toggle_slot", s.handleToggleSlot)
	s.route(mux, "POST /api/providers/{id}/days/{date}/regenerate", "regenerate", s.handleRegenerate)
	s.route(mux, "POST /api/providers/{id}/refresh", "refresh", s.handleRefresh)
	s.route(mux, "GET /api/providers/{id}/export", "export", s.handleExport)

	return mux
}

func (s *HTTPServer) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	var handler http.Handler = h
	handler = http.TimeoutHandler(handler, s.cfg.RequestTimeout, `{"error":"request timed out"}`)
	handler = s.requireAPIKey(handler)
	if s.limiter != nil {
		handler = s.limiter.middleware(handler)
	}
	mux.Handle(pattern, s.observe(name, handler))
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("address", s.cfg.Address).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	var perr *availability.PersistenceError
	switch {
	case availability.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, availability.ErrSlotBooked):
		return http.StatusConflict
	case errors.Is(err, availability.ErrSlotNotFound):
		return http.StatusNotFound
	case errors.Is(err, availability.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &perr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) observe(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.IncHTTPRequest(route, rec.status)
		s.logger.Debug().
			Str("route", route).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) requireAPIKey(next http.Handler) http.Handler {
	if s.cfg.APIKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
