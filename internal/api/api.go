// Package api provides HTTP handlers and the main API server logic for
// ScamPipe.
//
// It exposes RESTful endpoints for driving conversation turns and inspecting
// collected intelligence, plus health and Prometheus metrics endpoints.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/ScamPipe/internal/engine"
	"github.com/BTreeMap/ScamPipe/internal/genai"
	"github.com/BTreeMap/ScamPipe/internal/models"
)

// Default server timeouts.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	APIKey      string
	Generator   genai.Generator
	Registry    *prometheus.Registry
	ExtraRoutes map[string]http.Handler
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAPIKey enables X-API-Key authentication on the /api/v1 endpoints.
// Empty disables authentication.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithGenerator sets the reply generation backend. Nil means every reply is
// served from templates.
func WithGenerator(g genai.Generator) Option {
	return func(o *Opts) { o.Generator = g }
}

// WithRegistry sets the Prometheus registry served at /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *Opts) { o.Registry = reg }
}

// WithRoute mounts an extra handler, e.g. a channel webhook. Extra routes
// bypass API-key authentication; the remote side signs its own requests.
func WithRoute(path string, handler http.Handler) Option {
	return func(o *Opts) {
		if o.ExtraRoutes == nil {
			o.ExtraRoutes = make(map[string]http.Handler)
		}
		o.ExtraRoutes[path] = handler
	}
}

// Server hosts the engagement API.
type Server struct {
	engine      *engine.Engine
	generator   genai.Generator
	addr        string
	apiKey      string
	registry    *prometheus.Registry
	extraRoutes map[string]http.Handler
	httpSrv     *http.Server
}

// NewServer creates an API server around the given engine.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		engine:      eng,
		generator:   cfg.Generator,
		addr:        cfg.Addr,
		apiKey:      cfg.APIKey,
		registry:    cfg.Registry,
		extraRoutes: cfg.ExtraRoutes,
	}
}

// Routes builds the request mux. Exposed separately so tests can drive the
// handlers without a listener.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/api/v1/engage", s.requireAPIKey(http.HandlerFunc(s.engageHandler)))
	mux.Handle("/api/v1/conversations", s.requireAPIKey(http.HandlerFunc(s.conversationsHandler)))
	mux.Handle("/api/v1/conversations/", s.requireAPIKey(http.HandlerFunc(s.conversationHandler)))
	for path, handler := range s.extraRoutes {
		mux.Handle(path, handler)
	}
	return mux
}

// Run starts the HTTP server and blocks until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr, "auth_enabled", s.apiKey != "")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down API server")
	return s.httpSrv.Shutdown(shutdownCtx)
}

// requireAPIKey enforces the X-API-Key header when a key is configured.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			provided := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) != 1 {
				slog.Warn("Server.requireAPIKey: rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid or missing API key"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", map[string]string{"status": "healthy"}))
}
