// Package config loads and validates server configuration from
// odyssey.yaml plus environment variables.
package config

import (
	"os"
	"time"
)

// Config is the complete, validated server configuration.
type Config struct {
	configDir string

	// Environment tags persisted rows and telemetry ("development",
	// "staging", "production").
	Environment string

	Server    *ServerConfig
	Providers *ProvidersConfig
	Story     *StoryConfig
	Auth      *AuthConfig
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig selects the text and image generation backends.
type ProvidersConfig struct {
	Text  *TextProviderConfig  `yaml:"text"`
	Image *ImageProviderConfig `yaml:"image"`
}

// TextProviderConfig configures the chapter text generator. The API key
// is read from the environment, never from YAML.
type TextProviderConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	APIKeyEnv   string  `yaml:"api_key_env"`
}

// APIKey resolves the provider API key from the environment.
func (c *TextProviderConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// ImageProviderConfig configures the illustration generator. An empty
// API key disables image generation rather than failing startup.
type ImageProviderConfig struct {
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey resolves the provider API key from the environment.
func (c *ImageProviderConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// StoryConfig tunes adventure pacing and shape.
type StoryConfig struct {
	// Length is the number of chapters per adventure.
	Length int `yaml:"length"`

	// WordDelay and ParagraphDelay pace the simulated-typing stream.
	WordDelay      time.Duration `yaml:"word_delay"`
	ParagraphDelay time.Duration `yaml:"paragraph_delay"`

	// Reconnect settings are advertised to clients via the catalog
	// endpoint; the server itself is stateless across reconnects.
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBackoffBase time.Duration `yaml:"reconnect_backoff_base"`
	ReconnectBackoffCap  time.Duration `yaml:"reconnect_backoff_cap"`
}

// AuthConfig configures bearer-token verification for the WebSocket
// gateway. With no JWKS URL the server runs in anonymous mode.
type AuthConfig struct {
	JWKSURL  string `yaml:"jwks_url"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	Required bool   `yaml:"required"`
}
