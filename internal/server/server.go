package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/diag-router/internal/middleware"
	"github.com/tributary-ai/diag-router/internal/orchestrator"
	"github.com/tributary-ai/diag-router/internal/security"
)

// Server exposes the routing layer over HTTP
type Server struct {
	orchestrator *orchestrator.Orchestrator
	httpServer   *http.Server
	logger       *logrus.Logger
	config       *Config

	authenticator *security.Authenticator
	rateLimiter   *security.InMemoryRateLimiter
	validator     *middleware.RequestValidator
}

// Config holds server configuration
type Config struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`

	Auth      *security.Config          `yaml:"auth"`
	RateLimit *security.RateLimitConfig `yaml:"rate_limit"`
	Validate  *middleware.ValidationConfig
}

// NewServer creates a new server instance
func NewServer(orch *orchestrator.Orchestrator, config *Config, logger *logrus.Logger) (*Server, error) {
	server := &Server{
		orchestrator: orch,
		logger:       logger,
		config:       config,
	}

	if config.Auth != nil {
		server.authenticator = security.NewAuthenticator(config.Auth, logger)
	}
	if config.RateLimit != nil && config.RateLimit.Enabled {
		server.rateLimiter = security.NewInMemoryRateLimiter(config.RateLimit, logger)
	}

	validator, err := middleware.NewRequestValidator(config.Validate, OpenAPISpec(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize request validator: %w", err)
	}
	server.validator = validator

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	r := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           ":" + s.config.Port,
		Handler:        r,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting diagnostic router server")
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping diagnostic router server")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	if s.authenticator != nil {
		r.Use(s.authenticator.Middleware())
	}
	if s.rateLimiter != nil {
		r.Use(security.RateLimitMiddleware(s.rateLimiter, security.CallerKeyExtractor))
	}
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.contentTypeMiddleware)
	r.Use(s.validator.Middleware)

	api := r.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/consult", s.handleConsult).Methods("POST")
	api.HandleFunc("/consensus", s.handleConsensus).Methods("POST")
	api.HandleFunc("/assess", s.handleAssess).Methods("POST")
	api.HandleFunc("/routing/decision", s.handleRoutingDecision).Methods("POST")

	api.HandleFunc("/backends", s.handleListBackends).Methods("GET")
	api.HandleFunc("/backends/{id}", s.handleGetBackend).Methods("GET")

	r.HandleFunc("/health", s.handleHealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.setupDocsRoutes(r)

	return r
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && contentType != "" {
				s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Helpers

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "api_error",
			"code":    statusCode,
		},
		"timestamp": time.Now().Unix(),
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
