package security

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	authInfoKey contextKey = "auth_info"
	clientIPKey contextKey = "client_ip"
)

// AuthInfo describes the authenticated caller of a consult request
type AuthInfo struct {
	CallerID    string            `json:"caller_id"`
	APIKey      string            `json:"api_key,omitempty"`
	Permissions []string          `json:"permissions"`
	Metadata    map[string]string `json:"metadata"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

// JWTClaims represents the claims carried by issued tokens
type JWTClaims struct {
	CallerID    string            `json:"caller_id"`
	Permissions []string          `json:"permissions"`
	Metadata    map[string]string `json:"metadata"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration
type Config struct {
	APIKeys     []string      `yaml:"api_keys"`
	JWTSecret   string        `yaml:"jwt_secret"`
	JWTExpiry   time.Duration `yaml:"jwt_expiry"`
	RequireAuth bool          `yaml:"require_auth"`
}

// Authenticator validates API keys and JWTs for the routing API
type Authenticator struct {
	config *Config
	logger *logrus.Logger
}

// NewAuthenticator creates an authenticator over the configured key set
func NewAuthenticator(config *Config, logger *logrus.Logger) *Authenticator {
	if config.JWTExpiry == 0 {
		config.JWTExpiry = 24 * time.Hour
	}

	return &Authenticator{
		config: config,
		logger: logger,
	}
}

// Authenticate validates a bearer credential, accepting either a
// configured API key or a signed JWT.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*AuthInfo, error) {
	if info, err := a.ValidateAPIKey(ctx, token); err == nil {
		return info, nil
	}

	if claims, err := a.ValidateJWT(token); err == nil {
		return &AuthInfo{
			CallerID:    claims.CallerID,
			Permissions: claims.Permissions,
			Metadata:    claims.Metadata,
			ExpiresAt:   &claims.ExpiresAt.Time,
		}, nil
	}

	return nil, errors.New("invalid authentication token")
}

// ValidateAPIKey checks a key against the configured set in constant time
func (a *Authenticator) ValidateAPIKey(ctx context.Context, apiKey string) (*AuthInfo, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	for _, validKey := range a.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			return &AuthInfo{
				CallerID:    callerIDFor(apiKey),
				APIKey:      apiKey,
				Permissions: []string{"consult:invoke"},
				Metadata:    map[string]string{"auth_type": "api_key"},
			}, nil
		}
	}

	a.logger.WithFields(logrus.Fields{
		"api_key_prefix": maskAPIKey(apiKey),
		"remote_ip":      clientIPFromContext(ctx),
	}).Warn("Invalid API key attempted")

	return nil, errors.New("invalid API key")
}

// GenerateJWT issues a signed token for the caller
func (a *Authenticator) GenerateJWT(callerID string, claims map[string]interface{}) (string, error) {
	now := time.Now()

	jwtClaims := &JWTClaims{
		CallerID: callerID,
		Metadata: make(map[string]string),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "diag-router",
			Subject:   callerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.JWTExpiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	for key, value := range claims {
		switch key {
		case "permissions":
			if perms, ok := value.([]string); ok {
				jwtClaims.Permissions = perms
			}
		default:
			if strVal, ok := value.(string); ok {
				jwtClaims.Metadata[key] = strVal
			}
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)
	return token.SignedString([]byte(a.config.JWTSecret))
}

// ValidateJWT parses and verifies a token issued by GenerateJWT
func (a *Authenticator) ValidateJWT(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.config.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid JWT token")
}

// Middleware enforces authentication on the routing API. Health and
// metrics endpoints stay open for probes and scrapers.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			if !a.config.RequireAuth {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				a.writeUnauthorized(w, "Missing authentication token")
				return
			}

			ctx := context.WithValue(r.Context(), clientIPKey, clientIPFromRequest(r))
			authInfo, err := a.Authenticate(ctx, token)
			if err != nil {
				a.logger.WithFields(logrus.Fields{
					"error":     err.Error(),
					"path":      r.URL.Path,
					"method":    r.Method,
					"remote_ip": clientIPFromRequest(r),
				}).Warn("Authentication failed")

				a.writeUnauthorized(w, "Invalid authentication token")
				return
			}

			ctx = context.WithValue(ctx, authInfoKey, authInfo)

			a.logger.WithFields(logrus.Fields{
				"caller_id": authInfo.CallerID,
				"auth_type": authInfo.Metadata["auth_type"],
				"path":      r.URL.Path,
			}).Debug("Authentication successful")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}

	return ""
}

func callerIDFor(apiKey string) string {
	if len(apiKey) >= 8 {
		return "caller_" + apiKey[:8]
	}
	return "caller_" + apiKey
}

func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:4] + "****" + apiKey[len(apiKey)-4:]
}

func clientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return "unknown"
}

func clientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if colonIndex := strings.LastIndex(ip, ":"); colonIndex != -1 {
		ip = ip[:colonIndex]
	}

	return ip
}

func (a *Authenticator) writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	timestamp := time.Now().Unix()
	response := fmt.Sprintf(`{"error":{"message":"%s","type":"authentication_error","code":401},"timestamp":%d}`, message, timestamp)
	w.Write([]byte(response))
}

// GetAuthInfo extracts authentication info from a request context
func GetAuthInfo(ctx context.Context) (*AuthInfo, bool) {
	if authInfo, ok := ctx.Value(authInfoKey).(*AuthInfo); ok {
		return authInfo, true
	}
	return nil, false
}
