package config

import "time"

// DefaultServerConfig returns the built-in HTTP listener defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:              "0.0.0.0",
		Port:              8080,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// DefaultProvidersConfig returns the built-in provider defaults.
func DefaultProvidersConfig() *ProvidersConfig {
	return &ProvidersConfig{
		Text: &TextProviderConfig{
			Model:       "claude-sonnet-4-5",
			MaxTokens:   4096,
			Temperature: 1.0,
			APIKeyEnv:   "ANTHROPIC_API_KEY",
		},
		Image: &ImageProviderConfig{
			Model:     "gemini-2.0-flash-exp",
			APIKeyEnv: "GOOGLE_API_KEY",
		},
	}
}

// DefaultStoryConfig returns the built-in story pacing defaults.
func DefaultStoryConfig() *StoryConfig {
	return &StoryConfig{
		Length:               10,
		WordDelay:            15 * time.Millisecond,
		ParagraphDelay:       50 * time.Millisecond,
		MaxReconnectAttempts: 5,
		ReconnectBackoffBase: 1 * time.Second,
		ReconnectBackoffCap:  30 * time.Second,
	}
}

// DefaultAuthConfig returns anonymous-mode auth defaults.
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{}
}
