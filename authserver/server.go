package authserver

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

// Server routes. PathPin2 mirrors pin2.Path.
const (
	PathPin2    = "/v2/login/pin2"
	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Server handles the login protocol over HTTP.
type Server struct {
	store    RecordStore
	apiKey   string
	now      func() time.Time
	registry *prometheus.Registry
	metrics  *metrics
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKey requires "Authorization: Token <key>" on protocol routes.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithClock overrides the clock used for timestamps and OTP checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRegistry registers metrics with reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// New creates a server backed by store.
func New(store RecordStore, opts ...Option) *Server {
	s := &Server{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.registry)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get(PathHealth, s.handleHealth)
	r.Method(http.MethodGet, PathMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post(login.PathLogin, s.handleLogin)
		r.Post(login.PathCreate, s.handleCreate)
		r.Post(PathPin2, s.handlePin2Update)
		r.Delete(PathPin2, s.handlePin2Delete)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Token ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
