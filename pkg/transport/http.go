package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"

	"github.com/mnohosten/reactor/pkg/reactive"
	"github.com/mnohosten/reactor/pkg/reactiveauth"
)

// Config controls the HTTP/WebSocket/GraphQL surface exposed over a
// Registry.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxRequestSize int64

	EnableCORS     bool
	AllowedOrigins []string

	EnableGraphQL bool
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxRequestSize: 1 << 20,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableGraphQL:  true,
	}
}

// Server is the transport layer's HTTP entry point: snapshot reads and
// WebSocket/GraphQL subscriptions onto a Registry, guarded by an optional
// reactiveauth.Manager.
type Server struct {
	config    *Config
	registry  *Registry
	auth      *reactiveauth.Manager
	router    *chi.Mux
	httpSrv   *http.Server
	startTime time.Time
}

// New builds a Server. auth may be nil, in which case every endpoint is
// open — appropriate for a trusted internal deployment, not for exposing
// this process directly to untrusted clients.
func New(config *Config, registry *Registry, auth *reactiveauth.Manager) *Server {
	s := &Server{
		config:    config,
		registry:  registry,
		auth:      auth,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	if config.EnableGraphQL {
		s.setupGraphQLRoutes()
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Logger)

	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(gzhttp.GzipHandler)
}

func (s *Server) setupRoutes() {
	s.router.Get("/_health", s.handleHealth)
	s.router.Get("/_collections", s.handleCollections)
	s.router.Get("/_snapshot/{name}", s.requireAuth(s.handleSnapshot))
	s.router.Get("/_ws/watch/{name}", s.handleWatch)
}

func (s *Server) setupGraphQLRoutes() {
	schema, err := NewGraphQLSchema(s.registry)
	if err != nil {
		fmt.Printf("warning: graphql schema build failed: %v\n", err)
		return
	}
	handler := NewGraphQLHandler(schema)
	s.router.Post("/graphql", handler.ServeHTTP)
	s.router.Get("/graphiql", GraphiQLHandler())
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.MaxRequestSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth enforces a bearer token when s.auth is configured.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next(w, r)
			return
		}
		token, err := reactiveauth.ParseBearer(r.Header.Get("Authorization"))
		if err != nil || s.auth.Check(token) != nil {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{
		"uptimeSeconds": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.registry.Names())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	set, ok := s.registry.Get(name)
	if !ok {
		WriteError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no such collection %q", name))
		return
	}
	sink := reactive.Snapshot(set)
	defer sink.Close()
	WriteSuccess(w, sink.Items())
}

// Start runs the server until a shutdown signal arrives, then drains
// gracefully.
func (s *Server) Start() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("transport: server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		return s.Shutdown()
	}
}

// Shutdown gracefully drains in-flight requests and connections.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// WriteJSON writes data as a JSON response with statusCode.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a structured JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, errorType, message string) {
	WriteJSON(w, statusCode, map[string]any{
		"ok":      false,
		"error":   errorType,
		"message": message,
		"code":    statusCode,
	})
}

// WriteSuccess writes a structured JSON success response.
func WriteSuccess(w http.ResponseWriter, result any) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"result": result,
	})
}
