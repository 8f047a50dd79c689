package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/DesmondChoy/odyssey/pkg/llm"
	"github.com/DesmondChoy/odyssey/pkg/models"
	"github.com/DesmondChoy/odyssey/pkg/story"
)

// generateChapter streams chapter n to the client, then records the
// finished chapter and kicks off its background work. The streaming gate
// is held for the entire stream window; deferred tasks queued here run
// only after the stream completes.
func (e *Engine) generateChapter(ctx context.Context, n int) error {
	if n > e.state.StoryLength {
		return fmt.Errorf("chapter %d beyond story length %d", n, e.state.StoryLength)
	}

	chapterType := e.state.PlannedChapterTypes[n-1]

	var question *models.LessonQuestion
	if chapterType == models.ChapterTypeLesson {
		q, err := e.sampleQuestion()
		if err != nil {
			// Question pool exhausted mid-adventure: the slot degrades to a
			// story chapter rather than failing the session.
			e.logger.Warn("lesson slot degraded to story", "chapter", n, "error", err)
			e.recordEvent(models.EventPlannerWarning, map[string]any{
				"warning": fmt.Sprintf("chapter %d lesson slot degraded to story: no questions left", n),
			})
			e.state.PlannedChapterTypes[n-1] = models.ChapterTypeStory
			chapterType = models.ChapterTypeStory
		} else {
			question = &q
		}
	}

	var agencyLines []string
	if n == 1 {
		agencyLines = story.AgencyChoiceLines(e.rng)
	}
	p := e.prompts.ComposeChapter(e.state, n, question, agencyLines)

	gate := llm.NewParagraphGate(e.textGen, e.prompts, e.logger)
	var content string

	streamStart := time.Now()
	err := e.sched.RunStreaming(ctx, func(sctx context.Context) error {
		if err := e.conn.SendJSON(sctx, models.NewChapterUpdateFrame(n, e.state.StoryLength)); err != nil {
			return err
		}

		stream, err := e.textGen.StreamChapter(sctx, p)
		if err != nil {
			return err
		}
		defer func() { _ = stream.Close() }()

		pacer := newPacer(e.conn, e.cfg.WordDelay, e.cfg.ParagraphDelay)
		for {
			chunk, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return err
			}
			gate.Observe(sctx, chunk)
			if err := pacer.Send(sctx, chunk); err != nil {
				return err
			}
		}
		content = gate.Finalize(sctx)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chapter %d stream failed: %w", n, err)
	}

	clean, choices := extractChoices(content, n)
	switch chapterType {
	case models.ChapterTypeLesson:
		choices = questionChoices(question, n)
	case models.ChapterTypeConclusion:
		choices = nil
	default:
		if len(choices) != 3 {
			e.logger.Warn("generated chapter missing choice block", "chapter", n, "parsed", len(choices))
			choices = fallbackChoices(n)
		}
	}

	chapter := models.Chapter{
		ChapterNumber: n,
		ChapterType:   chapterType,
		Content:       clean,
		Choices:       choices,
		Question:      question,
	}
	if err := e.state.AppendChapter(chapter); err != nil {
		return err
	}
	if question != nil {
		e.state.LessonQuestions = append(e.state.LessonQuestions, *question)
	}
	if err := e.persist(ctx); err != nil {
		return fmt.Errorf("failed to persist chapter %d: %w", n, err)
	}

	// The authoritative cleaned text replaces whatever streamed live.
	if err := e.conn.SendJSON(ctx, models.NewReplaceContentFrame(clean)); err != nil {
		return err
	}
	if chapterType == models.ChapterTypeConclusion {
		// Re-announce chapter position after the final stream so clients
		// render the conclusion view rather than a mid-story one.
		if err := e.conn.SendJSON(ctx, models.NewChapterUpdateFrame(n, e.state.StoryLength)); err != nil {
			return err
		}
		e.phase = phaseConcluded
	} else {
		if err := e.conn.SendJSON(ctx, models.NewChoicesFrame(choices)); err != nil {
			return err
		}
		e.phase = phaseAwaitingChoice
	}

	e.recordEvent(models.EventChapterViewed, map[string]any{
		"chapter":      n,
		"chapter_type": string(chapterType),
		"duration_ms":  time.Since(streamStart).Milliseconds(),
	})

	// Non-conclusion chapters are summarized once their choice is known,
	// so the recap can reflect what the protagonist picked.
	if chapterType == models.ChapterTypeConclusion {
		e.enqueueSummary(n, chapter)
	}
	e.enqueueVisualUpdate(n, clean)
	e.launchImagePipeline(n, clean)
	return nil
}

// sampleQuestion draws an unused question, lazily rebuilding the sampler
// on resumed sessions from the questions already bound to chapters.
func (e *Engine) sampleQuestion() (models.LessonQuestion, error) {
	if e.sampler == nil {
		used := make([]string, 0, len(e.state.LessonQuestions))
		for _, q := range e.state.LessonQuestions {
			used = append(used, q.Question)
		}
		e.sampler = e.questions.NewSampler(e.state.LessonTopic, e.rng, used)
	}
	for {
		q, err := e.sampler.Sample()
		if err != nil {
			return models.LessonQuestion{}, err
		}
		if !e.state.QuestionUsed(q.Question) {
			return q, nil
		}
	}
}

// enqueueSummary queues background title/summary generation for the
// finished chapter.
func (e *Engine) enqueueSummary(n int, chapter models.Chapter) {
	err := e.sched.EnqueueDeferred(fmt.Sprintf("summarize_chapter_%d", n), func(ctx context.Context) error {
		title, summary, err := e.summarizeChapter(ctx, &chapter)
		if err != nil {
			return err
		}
		e.submitUpdate(func(s *models.AdventureState) {
			e.growSummaries(n)
			if s.ChapterSummaries[n-1] == "" {
				s.SummaryChapterTitles[n-1] = title
				s.ChapterSummaries[n-1] = summary
			}
		})
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to queue chapter summary", "chapter", n, "error", err)
	}
}

func (e *Engine) summarizeChapter(ctx context.Context, chapter *models.Chapter) (title, summary string, err error) {
	choiceContext := ""
	if chapter.Response != nil {
		choiceContext = chapter.Response.ChoiceText
	}
	raw, err := e.textGen.CompleteJSON(ctx, e.prompts.ComposeSummary(chapter, choiceContext))
	if err != nil {
		return "", "", err
	}
	payload, err := llm.ExtractJSON(raw)
	if err != nil {
		return "", "", err
	}
	var out struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return "", "", fmt.Errorf("malformed summary payload: %w", err)
	}
	if out.Summary == "" {
		return "", "", fmt.Errorf("summary payload empty")
	}
	if out.Title == "" {
		out.Title = fmt.Sprintf("Chapter %d", chapter.ChapterNumber)
	}
	return out.Title, out.Summary, nil
}

// enqueueVisualUpdate queues extraction of character visual descriptions
// from the finished chapter.
func (e *Engine) enqueueVisualUpdate(n int, content string) {
	snapshot := make(map[string]string, len(e.state.CharacterVisuals))
	for k, v := range e.state.CharacterVisuals {
		snapshot[k] = v
	}
	err := e.sched.EnqueueDeferred(fmt.Sprintf("visual_update_chapter_%d", n), func(ctx context.Context) error {
		raw, err := e.textGen.CompleteJSON(ctx, e.prompts.ComposeCharacterVisualUpdate(content, snapshot))
		if err != nil {
			return err
		}
		payload, err := llm.ExtractJSON(raw)
		if err != nil {
			return err
		}
		var visuals map[string]string
		if err := json.Unmarshal([]byte(payload), &visuals); err != nil {
			return fmt.Errorf("malformed visuals payload: %w", err)
		}
		e.submitUpdate(func(s *models.AdventureState) {
			s.MergeCharacterVisuals(visuals)
		})
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to queue visual update", "chapter", n, "error", err)
	}
}

// launchImagePipeline runs scene extraction, prompt synthesis, and
// rendering for the chapter illustration. The two text steps route
// through the deferred queue so they never overlap a stream; rendering
// runs free. A failed pipeline drops the image frame silently.
func (e *Engine) launchImagePipeline(n int, content string) {
	if e.imageGen == nil {
		return
	}
	protagonist := e.state.ProtagonistDescription
	agency := e.state.Metadata.Agency
	visuals := make(map[string]string, len(e.state.CharacterVisuals))
	for k, v := range e.state.CharacterVisuals {
		visuals[k] = v
	}
	mood := story.SensoryMood(e.state.CurrentPhase(n))

	e.sched.GoImagePipeline(fmt.Sprintf("illustrate_chapter_%d", n), func(ctx context.Context) error {
		var scene string
		err := e.sched.RunDeferredWait(ctx, fmt.Sprintf("image_scene_chapter_%d", n), func(tctx context.Context) error {
			out, err := e.textGen.CompleteJSON(tctx, e.prompts.ComposeImageScene(content))
			if err != nil {
				return err
			}
			scene = strings.TrimSpace(out)
			return nil
		})
		if err != nil {
			return err
		}

		var imagePrompt string
		err = e.sched.RunDeferredWait(ctx, fmt.Sprintf("image_synthesis_chapter_%d", n), func(tctx context.Context) error {
			out, err := e.textGen.CompleteJSON(tctx,
				e.prompts.ComposeImageSynthesis(scene, protagonist, agency, visuals, mood))
			if err != nil {
				return err
			}
			imagePrompt = strings.TrimSpace(out)
			return nil
		})
		if err != nil {
			return err
		}

		data, err := e.imageGen.Generate(ctx, imagePrompt)
		if err != nil {
			return err
		}
		return e.conn.SendJSON(ctx, models.NewImageFrame(n, base64.StdEncoding.EncodeToString(data)))
	})
}

// submitUpdate hands a state mutation to the Run goroutine. If the
// engine is gone the update is dropped; state on disk still reflects the
// last persisted view.
func (e *Engine) submitUpdate(update func(*models.AdventureState)) {
	select {
	case e.updates <- update:
	default:
	}
}

// pacer throttles streamed text so chapters read at a narrative pace
// instead of arriving in bursts. It also holds back the choice-marker
// block, which the client never needs to see raw.
type pacer struct {
	conn           Conn
	wordDelay      time.Duration
	paragraphDelay time.Duration

	held      strings.Builder
	inChoices bool
}

const choiceMarkerPrefix = "<choices>"

func newPacer(conn Conn, wordDelay, paragraphDelay time.Duration) *pacer {
	return &pacer{conn: conn, wordDelay: wordDelay, paragraphDelay: paragraphDelay}
}

// Send forwards a chunk word by word. Once the choice marker appears the
// remainder of the stream is suppressed.
func (p *pacer) Send(ctx context.Context, chunk string) error {
	if p.inChoices {
		return nil
	}
	p.held.WriteString(chunk)
	text := p.held.String()

	if idx := strings.Index(text, choiceMarkerPrefix); idx >= 0 {
		p.inChoices = true
		return p.emit(ctx, text[:idx])
	}

	// Hold back a tail that could be the start of a split marker.
	keep := partialMarkerLen(text)
	emit := text[:len(text)-keep]
	p.held.Reset()
	p.held.WriteString(text[len(text)-keep:])
	return p.emit(ctx, emit)
}

func (p *pacer) emit(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	words := strings.SplitAfter(text, " ")
	for _, w := range words {
		if w == "" {
			continue
		}
		if err := p.conn.SendText(ctx, w); err != nil {
			return err
		}
		delay := p.wordDelay
		if strings.Contains(w, "\n\n") {
			delay = p.paragraphDelay
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// partialMarkerLen returns how many trailing bytes of text could be a
// prefix of the choice marker.
func partialMarkerLen(text string) int {
	max := len(choiceMarkerPrefix) - 1
	if max > len(text) {
		max = len(text)
	}
	for l := max; l > 0; l-- {
		if strings.HasPrefix(choiceMarkerPrefix, text[len(text)-l:]) {
			return l
		}
	}
	return 0
}
