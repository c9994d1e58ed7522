package security

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_ValidateAPIKey(t *testing.T) {
	config := &Config{
		APIKeys: []string{"valid-key-1", "valid-key-2"},
	}
	logger := logrus.New()
	auth := NewAuthenticator(config, logger)
	ctx := context.Background()

	tests := []struct {
		name    string
		apiKey  string
		wantErr bool
	}{
		{
			name:    "valid API key 1",
			apiKey:  "valid-key-1",
			wantErr: false,
		},
		{
			name:    "valid API key 2",
			apiKey:  "valid-key-2",
			wantErr: false,
		},
		{
			name:    "invalid API key",
			apiKey:  "invalid-key",
			wantErr: true,
		},
		{
			name:    "empty API key",
			apiKey:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authInfo, err := auth.ValidateAPIKey(ctx, tt.apiKey)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, authInfo)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, authInfo)
				assert.NotEmpty(t, authInfo.CallerID)
				assert.Equal(t, tt.apiKey, authInfo.APIKey)
				assert.Contains(t, authInfo.Permissions, "consult:invoke")
				assert.Equal(t, "api_key", authInfo.Metadata["auth_type"])
			}
		})
	}
}

func TestAuthenticator_GenerateAndValidateJWT(t *testing.T) {
	config := &Config{
		JWTSecret: "test-secret-key-for-jwt-signing-must-be-long-enough",
		JWTExpiry: 1 * time.Hour,
	}
	logger := logrus.New()
	auth := NewAuthenticator(config, logger)

	callerID := "test-caller"
	claims := map[string]interface{}{
		"permissions":  []string{"consult:invoke", "consensus:invoke"},
		"organization": "test-org",
	}

	token, err := auth.GenerateJWT(callerID, claims)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	jwtClaims, err := auth.ValidateJWT(token)
	require.NoError(t, err)
	assert.NotNil(t, jwtClaims)
	assert.Equal(t, callerID, jwtClaims.CallerID)
	assert.Equal(t, []string{"consult:invoke", "consensus:invoke"}, jwtClaims.Permissions)
	assert.Equal(t, "test-org", jwtClaims.Metadata["organization"])
	assert.Equal(t, "diag-router", jwtClaims.Issuer)
}

func TestAuthenticator_ValidateJWT_InvalidToken(t *testing.T) {
	config := &Config{
		JWTSecret: "test-secret-key-for-jwt-signing-must-be-long-enough",
		JWTExpiry: 1 * time.Hour,
	}
	logger := logrus.New()
	auth := NewAuthenticator(config, logger)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "invalid token format",
			token: "not.a.jwt",
		},
		{
			name:  "malformed token",
			token: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := auth.ValidateJWT(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestAuthenticator_Authenticate(t *testing.T) {
	config := &Config{
		APIKeys:   []string{"api-key-test"},
		JWTSecret: "test-secret-key-for-jwt-signing-must-be-long-enough",
		JWTExpiry: 1 * time.Hour,
	}
	logger := logrus.New()
	auth := NewAuthenticator(config, logger)
	ctx := context.Background()

	authInfo, err := auth.Authenticate(ctx, "api-key-test")
	assert.NoError(t, err)
	assert.NotNil(t, authInfo)
	assert.Equal(t, "api-key-test", authInfo.APIKey)

	jwtToken, err := auth.GenerateJWT("test-caller", map[string]interface{}{
		"permissions": []string{"consult:invoke"},
	})
	require.NoError(t, err)

	authInfo, err = auth.Authenticate(ctx, jwtToken)
	assert.NoError(t, err)
	assert.NotNil(t, authInfo)
	assert.Equal(t, "test-caller", authInfo.CallerID)
	assert.Contains(t, authInfo.Permissions, "consult:invoke")

	authInfo, err = auth.Authenticate(ctx, "invalid-token")
	assert.Error(t, err)
	assert.Nil(t, authInfo)
}

func TestCallerIDFor(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		want   string
	}{
		{
			name:   "normal API key",
			apiKey: "sk-1234567890abcdef",
			want:   "caller_sk-12345",
		},
		{
			name:   "short API key",
			apiKey: "short",
			want:   "caller_short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callerIDFor(tt.apiKey)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		want   string
	}{
		{
			name:   "normal API key",
			apiKey: "sk-1234567890abcdef",
			want:   "sk-1****cdef",
		},
		{
			name:   "short API key",
			apiKey: "short",
			want:   "****",
		},
		{
			name:   "exactly 8 chars",
			apiKey: "12345678",
			want:   "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.apiKey)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestGetAuthInfo(t *testing.T) {
	authInfo := &AuthInfo{
		CallerID:    "test-caller",
		Permissions: []string{"consult:invoke"},
	}
	ctx := context.WithValue(context.Background(), authInfoKey, authInfo)

	result, ok := GetAuthInfo(ctx)
	assert.True(t, ok)
	assert.Equal(t, authInfo, result)

	emptyCtx := context.Background()
	result, ok = GetAuthInfo(emptyCtx)
	assert.False(t, ok)
	assert.Nil(t, result)
}
