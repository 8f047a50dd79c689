// Package llm defines the text-generation capability used by the engine
// and provides the Anthropic-backed implementation, the paragraph-quality
// gate, and tolerant JSON extraction for model responses.
package llm

import (
	"context"
	"errors"

	"github.com/DesmondChoy/odyssey/pkg/prompt"
)

// ErrTextGenerationFailed is returned after the retry budget for a
// provider call is exhausted.
var ErrTextGenerationFailed = errors.New("text generation failed")

// Stream yields chapter text fragments as they arrive from the provider.
// Recv returns io.EOF when the stream completes. The caller consumes
// chunks at its own pace; Close releases provider resources early.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// TextGenerator is the text-completion capability. StreamChapter is the
// latency-sensitive path; CompleteJSON serves summaries, scene extraction,
// visual updates, and image-prompt synthesis.
type TextGenerator interface {
	StreamChapter(ctx context.Context, p prompt.Prompt) (Stream, error)
	CompleteJSON(ctx context.Context, p prompt.Prompt) (string, error)
}
