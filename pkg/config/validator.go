package config

import (
	"fmt"

	"github.com/DesmondChoy/odyssey/pkg/models"
)

// validate performs validation on loaded configuration.
func validate(cfg *Config) error {
	if err := validateServer(cfg.Server); err != nil {
		return err
	}
	if err := validateProviders(cfg.Providers); err != nil {
		return err
	}
	if err := validateStory(cfg.Story); err != nil {
		return err
	}
	return validateAuth(cfg.Auth)
}

func validateServer(s *ServerConfig) error {
	if s.Port < 1 || s.Port > 65535 {
		return NewValidationError("server", "port",
			fmt.Errorf("%w: %d", ErrInvalidValue, s.Port))
	}
	if s.ReadHeaderTimeout <= 0 {
		return NewValidationError("server", "read_header_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.ShutdownTimeout <= 0 {
		return NewValidationError("server", "shutdown_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func validateProviders(p *ProvidersConfig) error {
	if p.Text.Model == "" {
		return NewValidationError("providers.text", "model", ErrMissingRequiredField)
	}
	if p.Text.MaxTokens <= 0 {
		return NewValidationError("providers.text", "max_tokens",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if p.Text.APIKeyEnv == "" {
		return NewValidationError("providers.text", "api_key_env", ErrMissingRequiredField)
	}
	if p.Image.Model == "" {
		return NewValidationError("providers.image", "model", ErrMissingRequiredField)
	}
	return nil
}

func validateStory(s *StoryConfig) error {
	if s.Length < models.MinStoryLength {
		return NewValidationError("story", "length",
			fmt.Errorf("%w: %d is below the minimum of %d", ErrInvalidValue, s.Length, models.MinStoryLength))
	}
	if s.WordDelay < 0 || s.ParagraphDelay < 0 {
		return NewValidationError("story", "word_delay",
			fmt.Errorf("%w: delays must not be negative", ErrInvalidValue))
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	if a.Required && a.JWKSURL == "" {
		return NewValidationError("auth", "jwks_url",
			fmt.Errorf("%w: required auth needs a JWKS URL", ErrMissingRequiredField))
	}
	return nil
}
