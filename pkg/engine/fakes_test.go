package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/DesmondChoy/odyssey/pkg/llm"
	"github.com/DesmondChoy/odyssey/pkg/models"
	"github.com/DesmondChoy/odyssey/pkg/prompt"
)

// logEntry is one recorded outbound message: a raw text chunk or a JSON
// frame.
type logEntry struct {
	text  string
	frame any
}

// fakeConn records everything sent to the client in order.
type fakeConn struct {
	mu  sync.Mutex
	log []logEntry
}

func (c *fakeConn) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, logEntry{text: text})
	return nil
}

func (c *fakeConn) SendJSON(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, logEntry{frame: v})
	return nil
}

func (c *fakeConn) entries() []logEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]logEntry, len(c.log))
	copy(out, c.log)
	return out
}

// framesOfType returns the recorded frames matching the predicate.
func (c *fakeConn) frames(pred func(any) bool) []any {
	var out []any
	for _, e := range c.entries() {
		if e.frame != nil && pred(e.frame) {
			out = append(out, e.frame)
		}
	}
	return out
}

func (c *fakeConn) streamedText() string {
	var sb strings.Builder
	for _, e := range c.entries() {
		sb.WriteString(e.text)
	}
	return sb.String()
}

// scriptedStream yields a fixed text in small chunks.
type scriptedStream struct {
	chunks []string
	idx    int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.idx >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.idx]
	s.idx++
	return chunk, nil
}

func (s *scriptedStream) Close() error { return nil }

func chunked(text string) []string {
	words := strings.SplitAfter(text, " ")
	var chunks []string
	for i := 0; i < len(words); i += 4 {
		end := i + 4
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], ""))
	}
	return chunks
}

// scriptedGenerator serves chapter scripts in order and routes JSON
// completions by prompt content.
type scriptedGenerator struct {
	mu       sync.Mutex
	chapters []string
	idx      int
	captured []prompt.Prompt

	summaryErr bool
}

func (g *scriptedGenerator) StreamChapter(ctx context.Context, p prompt.Prompt) (llm.Stream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captured = append(g.captured, p)
	if g.idx >= len(g.chapters) {
		return nil, fmt.Errorf("no scripted chapter for call %d", g.idx+1)
	}
	text := g.chapters[g.idx]
	g.idx++
	return &scriptedStream{chunks: chunked(text)}, nil
}

func (g *scriptedGenerator) CompleteJSON(ctx context.Context, p prompt.Prompt) (string, error) {
	g.mu.Lock()
	g.captured = append(g.captured, p)
	summaryErr := g.summaryErr
	g.mu.Unlock()

	switch {
	case strings.Contains(p.User, "Summarize the following"):
		if summaryErr {
			return "", fmt.Errorf("scripted summary failure")
		}
		return `{"title": "The Lantern Path", "summary": "The protagonist pressed on."}`, nil
	case strings.Contains(p.User, "Extract every named character"):
		return `{"Mira": "a silver fox with a red scarf"}`, nil
	case strings.Contains(p.User, "most visually striking"):
		return "The protagonist stands beneath a lantern tree.", nil
	case strings.Contains(p.User, "image-generation prompt"):
		return "Storybook scene of a lantern tree.", nil
	case strings.Contains(p.User, "Rewrite the following"):
		return p.User, nil
	default:
		return "", fmt.Errorf("unrouted completion prompt")
	}
}

// overlapTrackingGenerator counts JSON completions that run while a
// chapter stream window is open.
type overlapTrackingGenerator struct {
	*scriptedGenerator

	trackMu     sync.Mutex
	streaming   bool
	completions int
	overlaps    int
}

func (g *overlapTrackingGenerator) StreamChapter(ctx context.Context, p prompt.Prompt) (llm.Stream, error) {
	stream, err := g.scriptedGenerator.StreamChapter(ctx, p)
	if err != nil {
		return nil, err
	}
	g.trackMu.Lock()
	g.streaming = true
	g.trackMu.Unlock()
	return &trackedStream{Stream: stream, gen: g}, nil
}

func (g *overlapTrackingGenerator) CompleteJSON(ctx context.Context, p prompt.Prompt) (string, error) {
	g.trackMu.Lock()
	g.completions++
	if g.streaming {
		g.overlaps++
	}
	g.trackMu.Unlock()
	return g.scriptedGenerator.CompleteJSON(ctx, p)
}

// trackedStream closes the tracking window when the stream ends.
type trackedStream struct {
	llm.Stream
	gen *overlapTrackingGenerator
}

func (s *trackedStream) Recv() (string, error) {
	chunk, err := s.Stream.Recv()
	if err != nil {
		s.gen.trackMu.Lock()
		s.gen.streaming = false
		s.gen.trackMu.Unlock()
	}
	return chunk, err
}

// memoryStore keeps adventures in memory with real upsert semantics.
type memoryStore struct {
	mu     sync.Mutex
	states map[uuid.UUID][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[uuid.UUID][]byte)}
}

func (s *memoryStore) Upsert(ctx context.Context, state *models.AdventureState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.AdventureID == uuid.Nil {
		state.AdventureID = uuid.New()
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.states[state.AdventureID] = data
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id uuid.UUID) (*models.AdventureState, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.states[id]
	if !ok {
		return nil, nil, fmt.Errorf("adventure %s not stored", id)
	}
	var state models.AdventureState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil, err
	}
	return &state, nil, nil
}

// fakeTelemetry records events in order.
type fakeTelemetry struct {
	mu     sync.Mutex
	events []models.TelemetryEvent
}

func (t *fakeTelemetry) RecordAsync(event models.TelemetryEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *fakeTelemetry) ofType(eventType string) []models.TelemetryEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.TelemetryEvent
	for _, e := range t.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeImageGen returns fixed bytes for every prompt.
type fakeImageGen struct {
	mu      sync.Mutex
	prompts []string
}

func (g *fakeImageGen) Generate(ctx context.Context, p string) ([]byte, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	return []byte{0x89, 'P', 'N', 'G'}, nil
}
