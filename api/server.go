package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// DefaultAllowedOrigins are the dev server origins allowed by CORS.
var DefaultAllowedOrigins = []string{"http://127.0.0.1:5173", "http://localhost:5173"}

const (
	corsMethods = "POST, GET, OPTIONS, PUT, DELETE, PATCH"
	corsHeaders = "Authorization, Content-Type, " + RequestIDHeader
)

type requestIDKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Config configures a Server.
type Config struct {
	Addr           string
	Token          string
	AllowedOrigins []string
}

// Server mounts APIs on one http.Handler.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	index    map[string]string
	auth     Permission

	httpServer *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer sets the registry exposed at /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithDefaultPermission replaces RequireToken(cfg.Token) as the permission
// of routes registered without one.
func WithDefaultPermission(p Permission) ServerOption {
	return func(s *Server) {
		if p != nil {
			s.auth = p
		}
	}
}

// NewServer creates a server with the index and metrics routes.
func NewServer(cfg Config, opts ...ServerOption) *Server {
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}

	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		logger:   slog.New(slog.DiscardHandler),
		gatherer: prometheus.DefaultGatherer,
		index:    make(map[string]string),
		auth:     RequireToken(cfg.Token),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.Handle("GET /api", s.wrap(s.handleIndex, Public))
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Register mounts every api under "/<namespace>".
func (s *Server) Register(apis ...API) {
	for _, a := range apis {
		prefix := "/" + strings.Trim(a.Namespace(), "/")
		a.RegisterEndpoints(&Router{server: s, prefix: prefix, auth: s.auth})
		s.index[a.NiceName()] = prefix
		s.logger.Debug("api registered", "name", a.NiceName(), "prefix", prefix)
	}
}

// Handler returns the root handler with CORS, request ids and logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withLogging(s.withCORS(s.mux)))
}

// ListenAndServe serves on cfg.Addr until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, map[string]any{"api_urls": s.index})
}

func (s *Server) wrap(h HandlerFunc, perm Permission) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := perm(r)
		if err == nil {
			err = h(w, r)
		}
		if err == nil {
			return
		}

		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "request failed",
				"request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
		}
		WriteError(w, err)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.InfoContext(r.Context(), "request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
