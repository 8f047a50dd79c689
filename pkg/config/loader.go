package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// OdysseyYAMLConfig represents the complete odyssey.yaml file structure.
type OdysseyYAMLConfig struct {
	Environment string           `yaml:"environment"`
	Server      *ServerConfig    `yaml:"server"`
	Providers   *ProvidersConfig `yaml:"providers"`
	Story       *StoryConfig     `yaml:"story"`
	Auth        *AuthConfig      `yaml:"auth"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load odyssey.yaml from configDir (absent file means all defaults)
//  2. Expand environment variables
//  3. Merge user-defined values over built-in defaults
//  4. Validate the result
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"environment", cfg.Environment,
		"story_length", cfg.Story.Length,
		"text_model", cfg.Providers.Text.Model,
		"image_model", cfg.Providers.Image.Model,
		"auth_required", cfg.Auth.Required)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	user, err := loader.loadOdysseyYAML()
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			slog.Info("No odyssey.yaml found, using built-in defaults")
			user = &OdysseyYAMLConfig{}
		} else {
			return nil, NewLoadError("odyssey.yaml", err)
		}
	}

	// Start each section from defaults, then merge user values on top so
	// unset fields keep their defaults.
	server := DefaultServerConfig()
	if user.Server != nil {
		if err := mergo.Merge(server, user.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}

	providers := DefaultProvidersConfig()
	if user.Providers != nil {
		if err := mergo.Merge(providers, user.Providers, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge providers config: %w", err)
		}
	}

	story := DefaultStoryConfig()
	if user.Story != nil {
		if err := mergo.Merge(story, user.Story, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge story config: %w", err)
		}
	}

	auth := DefaultAuthConfig()
	if user.Auth != nil {
		if err := mergo.Merge(auth, user.Auth, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge auth config: %w", err)
		}
	}

	environment := user.Environment
	if environment == "" {
		environment = os.Getenv("ODYSSEY_ENVIRONMENT")
	}
	if environment == "" {
		environment = "development"
	}

	return &Config{
		configDir:   configDir,
		Environment: environment,
		Server:      server,
		Providers:   providers,
		Story:       story,
		Auth:        auth,
	}, nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadOdysseyYAML() (*OdysseyYAMLConfig, error) {
	var config OdysseyYAMLConfig
	if err := l.loadYAML("odyssey.yaml", &config); err != nil {
		return nil, err
	}
	return &config, nil
}
