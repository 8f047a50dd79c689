package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini-backed image generator.
type GeminiConfig struct {
	APIKey string

	// Model is the image-capable model name.
	Model string
}

const defaultImageModel = "gemini-2.0-flash-exp"

const (
	imageMaxAttempts     = 5
	imageAttemptTimeout  = 30 * time.Second
	imageBackoffInitial  = 1 * time.Second
	imageBackoffInterval = 30 * time.Second
)

// modelsAPI captures the single genai call the generator uses, so tests
// can substitute a fake.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator implements Generator on the Gemini API with image
// response modality. Each attempt is bounded; attempts retry with
// exponential backoff up to imageMaxAttempts.
type GeminiGenerator struct {
	models modelsAPI
	model  string
	logger *slog.Logger

	backoffInitial time.Duration
	backoffMax     time.Duration
}

// NewGeminiGenerator creates a generator with a real genai client.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultImageModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiGenerator(client.Models, cfg.Model, logger), nil
}

func newGeminiGenerator(models modelsAPI, model string, logger *slog.Logger) *GeminiGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiGenerator{
		models:         models,
		model:          model,
		logger:         logger.With("component", "imagegen.gemini"),
		backoffInitial: imageBackoffInitial,
		backoffMax:     imageBackoffInterval,
	}
}

// Generate renders one illustration. A nil error guarantees non-empty
// image bytes.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	var image []byte
	attempt := 0

	op := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, imageAttemptTimeout)
		defer cancel()

		data, err := g.generateOnce(actx, prompt)
		if err != nil {
			g.logger.WarnContext(ctx, "image generation attempt failed",
				"attempt", attempt, "error", err)
			return err
		}
		image = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.backoffInitial
	bo.MaxInterval = g.backoffMax
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, imageMaxAttempts-1), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	return image, nil
}

func (g *GeminiGenerator) generateOnce(ctx context.Context, prompt string) ([]byte, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("empty response")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, errors.New("no image data in response")
}
