package server

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v2"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPISpec returns the embedded API contract in YAML form
func OpenAPISpec() []byte {
	return openAPISpec
}

// setupDocsRoutes serves the API contract and a browsable UI
func (s *Server) setupDocsRoutes(r *mux.Router) {
	r.HandleFunc("/docs/openapi.yaml", s.handleOpenAPISpec).Methods("GET")
	r.HandleFunc("/docs/openapi.json", s.handleOpenAPISpec).Methods("GET")

	r.HandleFunc("/docs", s.handleDocsIndex).Methods("GET")
	r.HandleFunc("/docs/", s.handleDocsIndex).Methods("GET")
}

// handleOpenAPISpec serves the contract as YAML or JSON depending on the
// requested extension.
func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if strings.HasSuffix(r.URL.Path, ".json") {
		var spec interface{}
		if err := yaml.Unmarshal(openAPISpec, &spec); err != nil {
			http.Error(w, "Error parsing OpenAPI spec", http.StatusInternalServerError)
			return
		}

		jsonData, err := json.MarshalIndent(normalizeYAML(spec), "", "  ")
		if err != nil {
			http.Error(w, "Error converting to JSON", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonData)
		return
	}

	w.Header().Set("Content-Type", "text/yaml")
	w.Write(openAPISpec)
}

// normalizeYAML rewrites yaml.v2 map[interface{}]interface{} values into
// map[string]interface{} so they survive JSON marshalling.
func normalizeYAML(v interface{}) interface{} {
	switch value := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(value))
		for k, item := range value {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		for i, item := range value {
			value[i] = normalizeYAML(item)
		}
		return value
	default:
		return v
	}
}

// handleDocsIndex serves a minimal Swagger UI page over the embedded spec
func (s *Server) handleDocsIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")

	specURL := fmt.Sprintf("%s/docs/openapi.yaml", baseURL(r))

	html := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Diagnostic Router - API Documentation</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css" />
    <style>
        body { margin: 0; background: #fafafa; }
        .swagger-ui .topbar { display: none; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: '%s',
                dom_id: '#swagger-ui',
                deepLinking: true,
                docExpansion: "list",
                validatorUrl: null
            });
        };
    </script>
</body>
</html>`, specURL)

	w.Write([]byte(html))
}

// baseURL extracts the externally visible base URL from the request
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwardedProto := r.Header.Get("X-Forwarded-Proto"); forwardedProto != "" {
		scheme = forwardedProto
	}

	host := r.Host
	if forwardedHost := r.Header.Get("X-Forwarded-Host"); forwardedHost != "" {
		host = forwardedHost
	}

	return fmt.Sprintf("%s://%s", scheme, host)
}
