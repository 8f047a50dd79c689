package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/cenkalti/backoff/v4"

	"github.com/DesmondChoy/odyssey/pkg/prompt"
)

// MessagesClient captures the subset of the Anthropic SDK client the
// adapter uses. It is satisfied by *sdk.MessageService so tests can pass
// a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicConfig configures the Anthropic-backed generator.
type AnthropicConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// AnthropicGenerator implements TextGenerator on the Anthropic Messages
// API. Transient failures on the non-streaming path and on stream open
// are retried with exponential backoff; once a stream has delivered its
// first chunk, failures surface to the caller instead.
type AnthropicGenerator struct {
	msg    MessagesClient
	model  string
	maxTok int
	temp   float64
	logger *slog.Logger
}

const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxAttempts     = 5
)

// NewAnthropicGenerator builds a generator from an existing Messages
// client.
func NewAnthropicGenerator(msg MessagesClient, cfg AnthropicConfig, logger *slog.Logger) (*AnthropicGenerator, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("anthropic model identifier is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicGenerator{
		msg:    msg,
		model:  cfg.Model,
		maxTok: cfg.MaxTokens,
		temp:   cfg.Temperature,
		logger: logger.With("component", "llm.anthropic"),
	}, nil
}

// NewAnthropicGeneratorFromAPIKey constructs a generator with the default
// Anthropic HTTP client.
func NewAnthropicGeneratorFromAPIKey(apiKey string, cfg AnthropicConfig, logger *slog.Logger) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicGenerator(&ac.Messages, cfg, logger)
}

func (g *AnthropicGenerator) params(p prompt.Prompt) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: int64(g.maxTok),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(p.User)),
		},
	}
	if p.System != "" {
		params.System = []sdk.TextBlockParam{{Text: p.System}}
	}
	if g.temp > 0 {
		params.Temperature = sdk.Float(g.temp)
	}
	return params
}

func (g *AnthropicGenerator) retryPolicy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.Multiplier = 2
	return backoff.WithContext(backoff.WithMaxRetries(bo, retryMaxAttempts-1), ctx)
}

// CompleteJSON issues a non-streaming request and returns the raw
// assistant text. Callers extract the JSON payload with ExtractJSON.
func (g *AnthropicGenerator) CompleteJSON(ctx context.Context, p prompt.Prompt) (string, error) {
	var text string
	op := func() error {
		msg, err := g.msg.New(ctx, g.params(p))
		if err != nil {
			g.logger.WarnContext(ctx, "anthropic completion attempt failed", "error", err)
			return err
		}
		text = collectText(msg)
		if text == "" {
			return errors.New("empty completion")
		}
		return nil
	}
	if err := backoff.Retry(op, g.retryPolicy(ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTextGenerationFailed, err)
	}
	return text, nil
}

func collectText(msg *sdk.Message) string {
	var out string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}

// StreamChapter opens a streaming Messages request. Stream open is
// retried; a nil error guarantees the returned Stream produced at least
// one event source and is ready to Recv.
func (g *AnthropicGenerator) StreamChapter(ctx context.Context, p prompt.Prompt) (Stream, error) {
	var st *anthropicStream
	op := func() error {
		raw := g.msg.NewStreaming(ctx, g.params(p))
		if err := raw.Err(); err != nil {
			g.logger.WarnContext(ctx, "anthropic stream open attempt failed", "error", err)
			return err
		}
		st = newAnthropicStream(ctx, raw)
		return nil
	}
	if err := backoff.Retry(op, g.retryPolicy(ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTextGenerationFailed, err)
	}
	return st, nil
}

// anthropicStream pumps SDK streaming events into a chunk channel and
// serves them through the Stream interface.
type anthropicStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan string

	errMu    sync.Mutex
	finalErr error
	errSet   bool
}

func newAnthropicStream(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) *anthropicStream {
	cctx, cancel := context.WithCancel(ctx)
	s := &anthropicStream{
		ctx:    cctx,
		cancel: cancel,
		stream: stream,
		chunks: make(chan string, 32),
	}
	go s.run()
	return s
}

func (s *anthropicStream) Recv() (string, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return "", err
		}
		return "", io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.setErr(err)
		return "", err
	}
}

func (s *anthropicStream) Close() error {
	s.cancel()
	return s.stream.Close()
}

func (s *anthropicStream) run() {
	defer close(s.chunks)
	defer func() { _ = s.stream.Close() }()

	for s.stream.Next() {
		event := s.stream.Current()
		delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text, ok := delta.Delta.AsAny().(sdk.TextDelta)
		if !ok || text.Text == "" {
			continue
		}
		select {
		case s.chunks <- text.Text:
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		}
	}
	if err := s.stream.Err(); err != nil {
		s.setErr(err)
	} else if err := s.ctx.Err(); err != nil {
		s.setErr(err)
	}
}

func (s *anthropicStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet || err == nil {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *anthropicStream) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}
