package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 5, cfg.OTPMaxSendsPerHour)
	assert.Equal(t, "development-secret", cfg.JWTSecret)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("OTP_MAX_SENDS_PER_HOUR", "3")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 3, cfg.OTPMaxSendsPerHour)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0.0001)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:                 "production",
			Neo4jURI:            "bolt://db:7687",
			Neo4jUser:           "neo4j",
			Neo4jPassword:       "pw",
			DatabaseURL:         "postgres://x",
			RedisURL:            "redis://r:6379",
			JWTSecret:           "secret",
			AccessTokenTTL:      time.Hour,
			RefreshTokenTTL:     2 * time.Hour,
			OTPMaxSendsPerHour:  5,
			MatrixHomeserverURL: "http://matrix",
			S3Bucket:            "media",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing jwt secret in production", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"refresh shorter than access", func(c *Config) { c.RefreshTokenTTL = time.Minute }, "REFRESH_TOKEN_TTL"},
		{"missing redis", func(c *Config) { c.RedisURL = "" }, "REDIS_URL"},
		{"bad otp limit", func(c *Config) { c.OTPMaxSendsPerHour = 0 }, "OTP_MAX_SENDS_PER_HOUR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMatrixUserID(t *testing.T) {
	cfg := &Config{MatrixServerName: "chat.example.org"}
	assert.Equal(t, "@alice_1:chat.example.org", cfg.MatrixUserID("Alice_1"))
}
