package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	require.Equal(t, 3, cfg.Validation.MinLength)
	require.Equal(t, 1000, cfg.Validation.MaxLength)
	require.Equal(t, 30, cfg.Session.TimeoutMinutes)
	require.Equal(t, 1, cfg.Feedback.MinRating)
	require.Equal(t, 5, cfg.Feedback.MaxRating)
	require.Equal(t, "fallback", cfg.Pipeline.Provider)
	require.Equal(t, "bleve", cfg.Retrieval.Backend)
	require.Equal(t, "memory", cfg.Cache.Backend)
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max below min", func(c *Config) { c.Validation.MaxLength = 2 }},
		{"zero timeout", func(c *Config) { c.Session.TimeoutMinutes = 0 }},
		{"rating bounds", func(c *Config) { c.Feedback.MaxRating = 10 }},
		{"pipeline timeout", func(c *Config) { c.Pipeline.TimeoutSec = 0 }},
		{"provider", func(c *Config) { c.Pipeline.Provider = "crew" }},
		{"retrieval", func(c *Config) { c.Retrieval.Backend = "chroma" }},
		{"cache", func(c *Config) { c.Cache.Backend = "memcached" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
