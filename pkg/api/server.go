// Package api exposes the HTTP surface: the adventure WebSocket
// gateway, the summary and catalog REST endpoints, and health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/DesmondChoy/odyssey/pkg/database"
	"github.com/DesmondChoy/odyssey/pkg/engine"
	"github.com/DesmondChoy/odyssey/pkg/imagegen"
	"github.com/DesmondChoy/odyssey/pkg/llm"
	"github.com/DesmondChoy/odyssey/pkg/models"
	"github.com/DesmondChoy/odyssey/pkg/questions"
)

// AdventureStore is the persistence surface the API needs. Satisfied by
// *services.AdventureStore.
type AdventureStore interface {
	Upsert(ctx context.Context, state *models.AdventureState) error
	Get(ctx context.Context, id uuid.UUID) (*models.AdventureState, []string, error)
	FindActive(ctx context.Context, userID, clientUUID, category, topic string) (*models.AdventureState, []string, error)
}

// Telemetry records analytics events. Satisfied by *services.TelemetryService.
type Telemetry interface {
	RecordAsync(event models.TelemetryEvent)
}

// Config tunes the server and the sessions it spawns.
type Config struct {
	StoryLength    int
	WordDelay      time.Duration
	ParagraphDelay time.Duration

	// ReadHeaderTimeout bounds slow-client header reads; zero means 10s.
	ReadHeaderTimeout time.Duration
}

// Server wires the HTTP routes to the adventure services.
type Server struct {
	echo *echo.Echo
	http *http.Server

	dbClient  *database.Client
	store     AdventureStore
	telemetry Telemetry
	textGen   llm.TextGenerator
	imageGen  imagegen.Generator
	questions *questions.Source
	verifier  TokenVerifier

	cfg    Config
	logger *slog.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(dbClient *database.Client, store AdventureStore, telemetry Telemetry,
	textGen llm.TextGenerator, imageGen imagegen.Generator, qsrc *questions.Source,
	verifier TokenVerifier, cfg Config, logger *slog.Logger) *Server {

	if logger == nil {
		logger = slog.Default()
	}
	if verifier == nil {
		verifier = AnonymousVerifier{}
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}

	s := &Server{
		echo:      echo.New(),
		dbClient:  dbClient,
		store:     store,
		telemetry: telemetry,
		textGen:   textGen,
		imageGen:  imageGen,
		questions: qsrc,
		verifier:  verifier,
		cfg:       cfg,
		logger:    logger.With("component", "api"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.Use(securityHeaders())
	s.echo.Use(requestLogger(s.logger))

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/ws/adventure", s.adventureWSHandler)

	api := s.echo.Group("/api/v1")
	api.GET("/catalog", s.catalogHandler)
	api.GET("/adventures/:id/summary", s.summaryHandler)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves HTTP on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests. Active WebSocket sessions observe
// their request contexts ending and persist before exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// sessionConfig translates server configuration into per-session engine
// configuration.
func (s *Server) sessionConfig() engine.Config {
	return engine.Config{
		StoryLength:    s.cfg.StoryLength,
		WordDelay:      s.cfg.WordDelay,
		ParagraphDelay: s.cfg.ParagraphDelay,
	}
}
