// Odyssey server: the interactive storytelling WebSocket gateway and its
// supporting REST endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/DesmondChoy/odyssey/pkg/api"
	"github.com/DesmondChoy/odyssey/pkg/config"
	"github.com/DesmondChoy/odyssey/pkg/database"
	"github.com/DesmondChoy/odyssey/pkg/imagegen"
	"github.com/DesmondChoy/odyssey/pkg/llm"
	"github.com/DesmondChoy/odyssey/pkg/questions"
	"github.com/DesmondChoy/odyssey/pkg/services"
	"github.com/DesmondChoy/odyssey/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting Odyssey",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Domain services
	store := services.NewAdventureStore(dbClient.DB(), cfg.Environment, slog.Default())
	telemetry := services.NewTelemetryService(dbClient.DB(), cfg.Environment, slog.Default())

	qsrc, err := questions.Load()
	if err != nil {
		slog.Error("Failed to load question catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Question catalog loaded", "topics", len(qsrc.Topics()))

	// 4. Generation providers
	textCfg := cfg.Providers.Text
	textGen, err := llm.NewAnthropicGeneratorFromAPIKey(textCfg.APIKey(), llm.AnthropicConfig{
		Model:       textCfg.Model,
		MaxTokens:   textCfg.MaxTokens,
		Temperature: textCfg.Temperature,
	}, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize text generator", "error", err)
		os.Exit(1)
	}
	slog.Info("Text generator initialized", "model", textCfg.Model)

	// Missing image credentials disable illustration instead of failing
	// startup; adventures degrade to text-only.
	var imageGen imagegen.Generator
	if key := cfg.Providers.Image.APIKey(); key != "" {
		gen, err := imagegen.NewGeminiGenerator(ctx, imagegen.GeminiConfig{
			APIKey: key,
			Model:  cfg.Providers.Image.Model,
		}, slog.Default())
		if err != nil {
			slog.Error("Failed to initialize image generator", "error", err)
			os.Exit(1)
		}
		imageGen = gen
		slog.Info("Image generator initialized", "model", cfg.Providers.Image.Model)
	} else {
		slog.Warn("No image provider API key set, illustrations disabled",
			"api_key_env", cfg.Providers.Image.APIKeyEnv)
	}

	// 5. Token verifier
	var verifier api.TokenVerifier = api.AnonymousVerifier{}
	if cfg.Auth.JWKSURL != "" {
		jwtVerifier, err := api.NewJWTVerifier(ctx, cfg.Auth.JWKSURL,
			cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.Required)
		if err != nil {
			slog.Error("Failed to initialize JWT verifier", "error", err)
			os.Exit(1)
		}
		verifier = jwtVerifier
		slog.Info("JWT verification enabled", "required", cfg.Auth.Required)
	} else {
		slog.Info("Auth disabled, running in anonymous mode")
	}

	// 6. HTTP server
	httpServer := api.NewServer(dbClient, store, telemetry, textGen, imageGen, qsrc, verifier,
		api.Config{
			StoryLength:       cfg.Story.Length,
			WordDelay:         cfg.Story.WordDelay,
			ParagraphDelay:    cfg.Story.ParagraphDelay,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		}, slog.Default())

	// 7. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Odyssey started successfully",
		"environment", cfg.Environment,
		"story_length", cfg.Story.Length)

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown. Active sessions see their contexts end and
	// persist state before the listener closes.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
