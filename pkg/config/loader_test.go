package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "odyssey.yaml"), []byte(content), 0o644))
	return dir
}

func TestInitializeDefaults(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Story.Length)
	assert.Equal(t, 15*time.Millisecond, cfg.Story.WordDelay)
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.Providers.Text.APIKeyEnv)
	assert.False(t, cfg.Auth.Required)
}

func TestInitializeUserOverrides(t *testing.T) {
	dir := writeConfig(t, `
environment: production
server:
  port: 9090
story:
  length: 6
  word_delay: 5ms
providers:
  text:
    model: claude-haiku-4-5
auth:
  jwks_url: https://auth.example.com/jwks.json
  issuer: https://auth.example.com
  required: true
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Story.Length)
	assert.Equal(t, 5*time.Millisecond, cfg.Story.WordDelay)
	assert.Equal(t, "claude-haiku-4-5", cfg.Providers.Text.Model)
	assert.True(t, cfg.Auth.Required)

	// Unset fields keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 50*time.Millisecond, cfg.Story.ParagraphDelay)
	assert.Equal(t, 4096, cfg.Providers.Text.MaxTokens)
}

func TestInitializeExpandsEnvTemplates(t *testing.T) {
	t.Setenv("TEST_JWKS_URL", "https://idp.test/jwks.json")

	dir := writeConfig(t, `
auth:
  jwks_url: "{{.TEST_JWKS_URL}}"
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "https://idp.test/jwks.json", cfg.Auth.JWKSURL)
}

func TestInitializeEnvironmentFromEnv(t *testing.T) {
	t.Setenv("ODYSSEY_ENVIRONMENT", "staging")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
}

func TestInitializeRejectsInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "story: [not a mapping")
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"story too short", "story:\n  length: 3\n"},
		{"bad port", "server:\n  port: 0\n"},
		{"required auth without jwks", "auth:\n  required: true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeConfig(t, tc.yaml)
			_, err := Initialize(context.Background(), dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}
