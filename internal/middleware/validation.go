package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/sirupsen/logrus"
)

// RequestValidator rejects requests that do not match the published
// OpenAPI contract before they reach the routing layer.
type RequestValidator struct {
	router  routers.Router
	logger  *logrus.Logger
	enabled bool
}

// ValidationConfig configures the request validator
type ValidationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewRequestValidator builds a validator over the embedded OpenAPI
// document. Disabled validators pass every request through untouched.
func NewRequestValidator(config *ValidationConfig, specData []byte, logger *logrus.Logger) (*RequestValidator, error) {
	if config == nil {
		config = &ValidationConfig{Enabled: false}
	}

	rv := &RequestValidator{
		logger:  logger,
		enabled: config.Enabled,
	}

	if !config.Enabled {
		logger.Info("API validation middleware disabled")
		return rv, nil
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specData)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}

	ctx := context.Background()
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAPI router: %w", err)
	}

	rv.router = router
	logger.Info("API validation middleware enabled")
	return rv, nil
}

// Middleware returns the HTTP middleware function
func (rv *RequestValidator) Middleware(next http.Handler) http.Handler {
	if !rv.enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := rv.validateRequest(r); err != nil {
			rv.logger.WithError(err).WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			}).Warn("Request validation failed")

			rv.writeValidationError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rv *RequestValidator) validateRequest(r *http.Request) error {
	route, pathParams, err := rv.router.FindRoute(r)
	if err != nil {
		// Undocumented routes (health, metrics, docs) pass through.
		// Method mismatches on documented paths pass through too; the
		// mux router behind us answers those with its own 405.
		if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
			return nil
		}
		return fmt.Errorf("route lookup failed: %w", err)
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
	}
	if len(body) > 0 {
		input.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}

	return nil
}

func (rv *RequestValidator) writeValidationError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	errorStr := err.Error()
	message := "Request validation failed"
	switch {
	case strings.Contains(errorStr, "request body"):
		message = "Invalid request body format"
	case strings.Contains(errorStr, "required"):
		message = "Missing required field"
	case strings.Contains(errorStr, "enum"):
		message = "Invalid enum value"
	}

	response := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "validation_error",
			"code":    400,
			"details": errorStr,
		},
		"timestamp": time.Now().Unix(),
	}

	json.NewEncoder(w).Encode(response)
}
