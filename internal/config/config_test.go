package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Generation.Timeout)
	assert.Equal(t, ExecutorAsynq, cfg.Generation.Executor)
	assert.Equal(t, "en", cfg.Generation.DefaultLanguage)
	assert.Equal(t, 0, cfg.LLM.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Export.CacheTTL)
	assert.Equal(t, "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf", cfg.Export.FontPath)
	assert.Equal(t, "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf", cfg.Export.BoldFontPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("GENERATION_TIMEOUT", "45s")
	t.Setenv("JOB_EXECUTOR", "LOCAL")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, 45*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, ExecutorLocal, cfg.Generation.Executor)
	assert.InDelta(t, 2.5, cfg.RateLimit.RPS, 0.0001)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SERVER_PORT", "eighty"},
		{"GENERATION_TIMEOUT", "2 minutes"},
		{"RATE_LIMIT_RPS", "fast"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Generation.Timeout = 0
	cfg.Generation.Executor = "cron"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GENERATION_TIMEOUT")
	assert.Contains(t, err.Error(), "JOB_EXECUTOR")
}
