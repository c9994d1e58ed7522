package security

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRateLimiter_Allow_Disabled(t *testing.T) {
	config := &RateLimitConfig{
		Enabled:           false,
		RequestsPerMinute: 60,
	}
	logger := logrus.New()
	limiter := NewInMemoryRateLimiter(config, logger)
	defer limiter.Stop()
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "test-key")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 60, result.Remaining)
}

func TestInMemoryRateLimiter_Allow_WithinLimit(t *testing.T) {
	config := &RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		BurstSize:         10,
		WindowDuration:    time.Minute,
	}
	logger := logrus.New()
	limiter := NewInMemoryRateLimiter(config, logger)
	defer limiter.Stop()
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "test-key")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 9, result.Remaining)

	for i := 0; i < 9; i++ {
		result, err = limiter.Allow(ctx, "test-key")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
	assert.Equal(t, 0, result.Remaining)
}

func TestInMemoryRateLimiter_Allow_ExceedLimit(t *testing.T) {
	config := &RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		BurstSize:         2,
		WindowDuration:    time.Minute,
	}
	logger := logrus.New()
	limiter := NewInMemoryRateLimiter(config, logger)
	defer limiter.Stop()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, "test-key")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "test-key")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestInMemoryRateLimiter_Allow_DifferentKeys(t *testing.T) {
	config := &RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		BurstSize:         1,
		WindowDuration:    time.Minute,
	}
	logger := logrus.New()
	limiter := NewInMemoryRateLimiter(config, logger)
	defer limiter.Stop()
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "key2")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "key1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestInMemoryRateLimiter_Reset(t *testing.T) {
	config := &RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		BurstSize:         1,
		WindowDuration:    time.Minute,
	}
	logger := logrus.New()
	limiter := NewInMemoryRateLimiter(config, logger)
	defer limiter.Stop()
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "test-key")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "test-key")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	err = limiter.Reset(ctx, "test-key")
	require.NoError(t, err)

	result, err = limiter.Allow(ctx, "test-key")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInMemoryRateLimiter_Stop(t *testing.T) {
	config := &RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   100 * time.Millisecond,
	}
	logger := logrus.New()
	limiter := NewInMemoryRateLimiter(config, logger)

	assert.NotNil(t, limiter.cleanupTicker)

	limiter.Stop()
	// Second Stop must be a no-op
	limiter.Stop()
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{
			name: "normal key",
			key:  "sk-1234567890abcdef",
			want: "sk-1****",
		},
		{
			name: "short key",
			key:  "short",
			want: "****",
		},
		{
			name: "exactly 8 chars",
			key:  "12345678",
			want: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskKey(tt.key)
			assert.Equal(t, tt.want, result)
		})
	}
}
