// Package engine runs one adventure session: a per-connection state
// machine that plans the chapter sequence, streams generated chapters,
// records choices, and coordinates background summarization, character
// visual tracking, and illustration.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/DesmondChoy/odyssey/pkg/imagegen"
	"github.com/DesmondChoy/odyssey/pkg/llm"
	"github.com/DesmondChoy/odyssey/pkg/models"
	"github.com/DesmondChoy/odyssey/pkg/planner"
	"github.com/DesmondChoy/odyssey/pkg/prompt"
	"github.com/DesmondChoy/odyssey/pkg/questions"
	"github.com/DesmondChoy/odyssey/pkg/scheduler"
	"github.com/DesmondChoy/odyssey/pkg/services"
	"github.com/DesmondChoy/odyssey/pkg/story"
)

// Conn is the outbound half of the WebSocket connection. SendText
// carries raw streamed chapter text; SendJSON carries protocol frames.
type Conn interface {
	SendText(ctx context.Context, text string) error
	SendJSON(ctx context.Context, v any) error
}

// Store persists adventure state.
type Store interface {
	Upsert(ctx context.Context, state *models.AdventureState) error
	Get(ctx context.Context, id uuid.UUID) (*models.AdventureState, []string, error)
}

// Telemetry records analytics events off the gameplay path.
type Telemetry interface {
	RecordAsync(event models.TelemetryEvent)
}

// Config tunes per-session behavior.
type Config struct {
	StoryLength    int
	WordDelay      time.Duration
	ParagraphDelay time.Duration
}

type phase int

const (
	phaseAwaitingStart phase = iota
	phaseAwaitingChoice
	phaseConcluded
	phaseTerminal
)

// Engine drives a single session. All state mutation happens on the Run
// goroutine; background tasks hand their results over through the
// updates channel.
type Engine struct {
	state *models.AdventureState
	conn  Conn

	store     Store
	telemetry Telemetry
	textGen   llm.TextGenerator
	imageGen  imagegen.Generator
	prompts   *prompt.Builder
	sched     *scheduler.Scheduler
	questions *questions.Source
	sampler   *questions.Sampler
	rng       *rand.Rand
	cfg       Config
	logger    *slog.Logger

	phase   phase
	resumed bool
	updates chan func(*models.AdventureState)

	// startSeen suppresses the client's one-shot start frame after a
	// resume replayed the current chapter.
	startSeen bool
}

// New creates an engine for a fresh or resumed session. state carries at
// minimum the selection inputs (category, topic, identity); a resumed
// state additionally carries generated chapters.
func New(state *models.AdventureState, conn Conn, store Store, telemetry Telemetry,
	textGen llm.TextGenerator, imageGen imagegen.Generator, qsrc *questions.Source,
	sched *scheduler.Scheduler, cfg Config, logger *slog.Logger) *Engine {

	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StoryLength < models.MinStoryLength {
		cfg.StoryLength = 10
	}
	resumed := len(state.Chapters) > 0

	e := &Engine{
		state:     state,
		conn:      conn,
		store:     store,
		telemetry: telemetry,
		textGen:   textGen,
		imageGen:  imageGen,
		prompts:   prompt.NewBuilder(),
		sched:     sched,
		questions: qsrc,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		cfg:       cfg,
		logger:    logger.With("adventure_id", state.AdventureID),
		resumed:   resumed,
		updates:   make(chan func(*models.AdventureState), 32),
	}
	if resumed {
		e.phase = phaseAwaitingChoice
		if state.LastChapter().ChapterType == models.ChapterTypeConclusion {
			e.phase = phaseConcluded
		}
	}
	return e
}

// Run processes inbound choices until the session reaches its terminal
// state, the channel closes, or the context ends. Choices arriving while
// a chapter streams wait in the channel and apply afterwards.
func (e *Engine) Run(ctx context.Context, inbound <-chan *models.ClientChoice) error {
	defer e.sched.Stop()

	if e.resumed {
		if err := e.replayCurrentChapter(ctx); err != nil {
			return err
		}
		if err := e.continueAfterReplay(ctx); err != nil {
			return err
		}
	}

	for {
		if e.phase == phaseTerminal {
			return nil
		}
		select {
		case update := <-e.updates:
			e.applyUpdate(ctx, update)
		case choice, ok := <-inbound:
			if !ok {
				return nil
			}
			if err := e.handleChoice(ctx, choice); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				e.logger.Error("choice handling failed", "kind", choice.Kind, "error", err)
				e.sendError(ctx, "generation_failed", "Something went wrong continuing the story. Please try again.")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// applyUpdate folds a background result into the state and persists.
func (e *Engine) applyUpdate(ctx context.Context, update func(*models.AdventureState)) {
	update(e.state)
	if err := e.persist(ctx); err != nil {
		e.logger.Warn("failed to persist background update", "error", err)
	}
}

// drainUpdates applies any queued background results without blocking.
func (e *Engine) drainUpdates(ctx context.Context) {
	for {
		select {
		case update := <-e.updates:
			e.applyUpdate(ctx, update)
		default:
			return
		}
	}
}

func (e *Engine) handleChoice(ctx context.Context, choice *models.ClientChoice) error {
	switch choice.Kind {
	case models.ChoiceKindStart:
		return e.handleStart(ctx)
	case models.ChoiceKindRevealSummary:
		return e.revealSummary(ctx)
	case models.ChoiceKindNarrative, models.ChoiceKindLessonAnswer:
		return e.handleResponse(ctx, choice)
	default:
		return fmt.Errorf("unknown choice kind %q", choice.Kind)
	}
}

func (e *Engine) handleStart(ctx context.Context) error {
	if e.startSeen || e.phase != phaseAwaitingStart {
		// Reconnecting clients send start unconditionally; after a resume
		// replay the frame carries no new intent.
		e.startSeen = true
		return nil
	}
	e.startSeen = true

	if err := e.initialize(ctx); err != nil {
		return err
	}
	return e.generateChapter(ctx, 1)
}

// initialize plans the chapter sequence and persists the initial state.
func (e *Engine) initialize(ctx context.Context) error {
	e.state.StoryLength = e.cfg.StoryLength

	available := e.questions.Available(e.state.LessonTopic)
	plan, warnings, err := planner.Plan(e.state.StoryLength, available)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}
	e.state.PlannedChapterTypes = plan
	e.state.ProtagonistDescription = story.PickProtagonist(e.rng)
	e.sampler = e.questions.NewSampler(e.state.LessonTopic, e.rng, nil)

	if err := e.persist(ctx); err != nil {
		return fmt.Errorf("failed to persist new adventure: %w", err)
	}
	e.logger = e.logger.With("adventure_id", e.state.AdventureID)

	e.recordEvent(models.EventAdventureStarted, map[string]any{
		"story_category": e.state.StoryCategory,
		"lesson_topic":   e.state.LessonTopic,
		"story_length":   e.state.StoryLength,
	})
	for _, w := range warnings {
		e.recordEvent(models.EventPlannerWarning, map[string]any{"warning": w})
	}
	return nil
}

func (e *Engine) handleResponse(ctx context.Context, choice *models.ClientChoice) error {
	current := e.state.LastChapter()
	if current == nil || e.phase != phaseAwaitingChoice {
		return fmt.Errorf("no chapter awaiting a choice")
	}

	// Retried frames tag the chapter in their choice ID; one addressed to
	// an earlier, already-answered chapter is a duplicate to drop.
	if choice.Kind == models.ChoiceKindNarrative {
		if n := chapterOfChoiceID(choice.ChosenPath); n > 0 && n < current.ChapterNumber {
			return nil
		}
	}

	resp, err := e.buildResponse(current, choice)
	if err != nil {
		return err
	}

	recorded, err := e.state.RecordResponse(current.ChapterNumber, resp)
	if err != nil {
		return err
	}
	if !recorded {
		// Duplicate frame for an answered chapter; the follow-up chapter is
		// already on its way or delivered.
		return nil
	}

	if current.ChapterNumber == 1 {
		e.captureAgency(choice)
	}

	if err := e.persist(ctx); err != nil {
		return fmt.Errorf("failed to persist choice: %w", err)
	}
	e.recordEvent(models.EventChoiceMade, map[string]any{
		"chapter":      current.ChapterNumber,
		"chapter_type": string(current.ChapterType),
	})
	e.enqueueSummary(current.ChapterNumber, *current)

	return e.generateChapter(ctx, e.state.NextChapterNumber())
}

// buildResponse validates the inbound choice against the chapter type.
func (e *Engine) buildResponse(ch *models.Chapter, choice *models.ClientChoice) (models.ChapterResponse, error) {
	if ch.ChapterType == models.ChapterTypeLesson {
		if choice.Kind != models.ChoiceKindLessonAnswer {
			return models.ChapterResponse{}, fmt.Errorf("lesson chapter expects an answer index")
		}
		if ch.Question == nil || choice.AnswerIndex >= len(ch.Question.Answers) {
			return models.ChapterResponse{}, fmt.Errorf("answer index %d out of range", choice.AnswerIndex)
		}
		idx := choice.AnswerIndex
		correct := idx == ch.Question.CorrectIndex
		return models.ChapterResponse{AnswerIndex: &idx, IsCorrect: &correct}, nil
	}

	if choice.Kind != models.ChoiceKindNarrative {
		return models.ChapterResponse{}, fmt.Errorf("chapter %d expects a narrative choice", ch.ChapterNumber)
	}
	text := choice.ChoiceText
	if text == "" {
		for _, c := range ch.Choices {
			if c.ID == choice.ChosenPath {
				text = c.Text
				break
			}
		}
	}
	return models.ChapterResponse{ChosenPath: choice.ChosenPath, ChoiceText: text}, nil
}

// captureAgency binds the Chapter 1 choice to a catalog agency, falling
// back to the raw choice text when no catalog entry matches.
func (e *Engine) captureAgency(choice *models.ClientChoice) {
	if agency, ok := story.MatchAgency(choice.ChoiceText); ok {
		e.state.SetAgency(agency)
		return
	}
	e.state.SetAgency(models.Agency{
		Name:        choice.ChoiceText,
		Description: choice.ChoiceText,
	})
}

// replayCurrentChapter re-emits the last chapter so a reconnecting client
// can pick up where it left off.
func (e *Engine) replayCurrentChapter(ctx context.Context) error {
	ch := e.state.LastChapter()
	if ch == nil {
		return nil
	}
	start := time.Now()
	if err := e.conn.SendJSON(ctx, models.NewChapterUpdateFrame(ch.ChapterNumber, e.state.StoryLength)); err != nil {
		return err
	}
	if err := e.conn.SendJSON(ctx, models.NewReplaceContentFrame(ch.Content)); err != nil {
		return err
	}
	if ch.ChapterType != models.ChapterTypeConclusion && ch.Response == nil {
		if err := e.conn.SendJSON(ctx, models.NewChoicesFrame(ch.Choices)); err != nil {
			return err
		}
	}
	e.recordEvent(models.EventChapterViewed, map[string]any{
		"chapter":     ch.ChapterNumber,
		"resumed":     true,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// continueAfterReplay picks the story back up when the session dropped
// after a choice persisted but before the next chapter finished. The
// replayed chapter already holds its response, so no client frame will
// ever advance it; the engine generates the follow-up chapter itself.
func (e *Engine) continueAfterReplay(ctx context.Context) error {
	ch := e.state.LastChapter()
	if ch == nil || ch.Response == nil || ch.ChapterType == models.ChapterTypeConclusion {
		return nil
	}
	return e.generateChapter(ctx, e.state.NextChapterNumber())
}

// revealSummary finalizes the adventure: it backfills any summaries the
// background tasks have not produced, marks the state complete, and
// signals the client that the summary page is ready.
func (e *Engine) revealSummary(ctx context.Context) error {
	if e.phase != phaseConcluded {
		return fmt.Errorf("summary requested before the conclusion")
	}

	// Outstanding illustrations deliver before the summary page; a stop
	// after this point cancels nothing the client still wants.
	if err := e.sched.WaitImagePipelines(ctx); err != nil {
		return err
	}
	if err := e.sched.WaitDeferred(ctx); err != nil {
		return err
	}
	e.drainUpdates(ctx)
	e.fillMissingSummaries(ctx)

	e.state.IsComplete = true
	if err := e.persist(ctx); err != nil {
		return fmt.Errorf("failed to persist completion: %w", err)
	}
	if err := e.conn.SendJSON(ctx, models.NewSummaryReadyFrame(e.state.AdventureID.String())); err != nil {
		return err
	}
	e.recordEvent(models.EventSummaryViewed, nil)
	e.phase = phaseTerminal
	return nil
}

// fillMissingSummaries synchronously summarizes chapters the deferred
// tasks missed, falling back to placeholder text on failure.
func (e *Engine) fillMissingSummaries(ctx context.Context) {
	n := len(e.state.Chapters)
	e.growSummaries(n)
	for i := 0; i < n; i++ {
		if e.state.ChapterSummaries[i] != "" {
			continue
		}
		ch := &e.state.Chapters[i]
		title, summary, err := e.summarizeChapter(ctx, ch)
		if err != nil {
			e.logger.Warn("summary backfill failed", "chapter", ch.ChapterNumber, "error", err)
			title = fmt.Sprintf("Chapter %d", ch.ChapterNumber)
			summary = "Chapter summary not available"
		}
		e.state.SummaryChapterTitles[i] = title
		e.state.ChapterSummaries[i] = summary
	}
}

func (e *Engine) growSummaries(n int) {
	for len(e.state.ChapterSummaries) < n {
		e.state.ChapterSummaries = append(e.state.ChapterSummaries, "")
	}
	for len(e.state.SummaryChapterTitles) < n {
		e.state.SummaryChapterTitles = append(e.state.SummaryChapterTitles, "")
	}
}

// persist writes the state, resolving one optimistic-concurrency loss by
// refreshing the token and retrying.
func (e *Engine) persist(ctx context.Context) error {
	err := e.store.Upsert(ctx, e.state)
	if !errors.Is(err, services.ErrStateConflict) {
		return err
	}

	e.logger.Warn("state conflict on persist, refreshing token")
	fresh, _, gerr := e.store.Get(ctx, e.state.AdventureID)
	if gerr != nil {
		return fmt.Errorf("conflict refresh failed: %w", gerr)
	}
	// The engine's in-memory state is authoritative for this session; only
	// the concurrency token is taken from the fresh row.
	e.state.UpdatedAt = fresh.UpdatedAt
	return e.store.Upsert(ctx, e.state)
}

func (e *Engine) recordEvent(eventType string, payload map[string]any) {
	if e.telemetry == nil {
		return
	}
	e.telemetry.RecordAsync(models.NewTelemetryEvent(eventType, e.state.AdventureID, e.state.UserID, payload))
}

func (e *Engine) sendError(ctx context.Context, kind, message string) {
	if err := e.conn.SendJSON(ctx, models.NewErrorFrame(kind, message)); err != nil {
		e.logger.Warn("failed to send error frame", "error", err)
	}
}
