package api

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
	"github.com/DesmondChoy/odyssey/pkg/services"
)

// fakeStore is an in-memory AdventureStore.
type fakeStore struct {
	mu     sync.Mutex
	states map[uuid.UUID][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[uuid.UUID][]byte)}
}

func (s *fakeStore) Upsert(ctx context.Context, state *models.AdventureState) error {
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

func (s *fakeStore) Get(ctx context.Context, id uuid.UUID) (*models.AdventureState, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.states[id]
	if !ok {
		return nil, nil, services.ErrNotFound
	}
	var state models.AdventureState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil, err
	}
	return &state, nil, nil
}

func (s *fakeStore) FindActive(ctx context.Context, userID, clientUUID, category, topic string) (*models.AdventureState, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, data := range s.states {
		var state models.AdventureState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		if state.IsComplete || state.StoryCategory != category || state.LessonTopic != topic {
			continue
		}
		if (userID != "" && state.UserID == userID) || (userID == "" && state.ClientUUID == clientUUID) {
			return &state, nil, nil
		}
	}
	return nil, nil, services.ErrNotFound
}

// fakeTelemetry discards events.
type fakeTelemetry struct{}

func (fakeTelemetry) RecordAsync(event models.TelemetryEvent) {}

// rejectingVerifier fails every token.
type rejectingVerifier struct{}

func (rejectingVerifier) Verify(ctx context.Context, token string) (string, error) {
	return "", fmt.Errorf("%w: rejected by test", ErrInvalidToken)
}

// scriptedStream yields fixed text in one chunk.
type scriptedStream struct {
	text string
	done bool
}

func (s *scriptedStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *scriptedStream) Close() error { return nil }

// scriptedGenerator serves one chapter script and answers background
// completions with minimal valid payloads.
type scriptedGenerator struct {
	mu       sync.Mutex
	chapters []string
	idx      int
}

func (g *scriptedGenerator) StreamChapter(ctx context.Context, p prompt.Prompt) (llm.Stream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.chapters) {
		return nil, fmt.Errorf("no scripted chapter for call %d", g.idx+1)
	}
	text := g.chapters[g.idx]
	g.idx++
	return &scriptedStream{text: text}, nil
}

func (g *scriptedGenerator) CompleteJSON(ctx context.Context, p prompt.Prompt) (string, error) {
	switch {
	case strings.Contains(p.User, "Summarize the following"):
		return `{"title": "A Test Chapter", "summary": "Things happened."}`, nil
	case strings.Contains(p.User, "Rewrite the following"):
		return p.User, nil
	default:
		return `{}`, nil
	}
}
