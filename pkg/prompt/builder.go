// Package prompt composes every prompt the engine sends to the text
// generator. Pure string assembly: no I/O, no mutable state.
package prompt

import (
	"fmt"
	"strings"

	"github.com/DesmondChoy/odyssey/pkg/models"
	"github.com/DesmondChoy/odyssey/pkg/story"
)

// Prompt is a composed system + user message pair.
type Prompt struct {
	System string
	User   string
}

// Builder composes prompts from adventure state. Stateless and
// thread-safe; all inputs arrive as parameters.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// ComposeChapter builds the prompt for chapter chapterNumber (1-based).
// agencyChoices is consulted only for Chapter 1, where the three narrative
// choices present the agency catalog options.
func (b *Builder) ComposeChapter(state *models.AdventureState, chapterNumber int, question *models.LessonQuestion, agencyChoices []string) Prompt {
	chapterType := state.PlannedChapterTypes[chapterNumber-1]
	phase := state.CurrentPhase(chapterNumber)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Setting: %s\n\n", story.CategoryDescription(state.StoryCategory))
	fmt.Fprintf(&sb, "The protagonist is %s.\n\n", state.ProtagonistDescription)

	if state.Metadata.Agency.IsSet() {
		a := state.Metadata.Agency
		fmt.Fprintf(&sb, "In Chapter 1 the protagonist chose: %s (%s). Visual: %s. "+
			"Reference this agency naturally; never contradict or replace it.\n\n",
			a.Name, a.Category, a.VisualDetails)
	}

	if prior := b.priorChapterContext(state); prior != "" {
		sb.WriteString("The story so far:\n\n")
		sb.WriteString(prior)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Write chapter %d of %d.\n\n", chapterNumber, state.StoryLength)
	fmt.Fprintf(&sb, "Narrative phase guidance: %s\n\n", story.PhaseGuidance(phase))

	switch chapterType {
	case models.ChapterTypeLesson:
		sb.WriteString(lessonInstruction)
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "%q\n\n", question.Question)
		sb.WriteString("Answer options (present them in the story exactly in this order):\n")
		for i, ans := range question.Answers {
			fmt.Fprintf(&sb, "%c) %s\n", 'A'+i, ans)
		}
		sb.WriteString("\n")
		sb.WriteString(lessonNoChoicesInstruction)
	case models.ChapterTypeReflect:
		sb.WriteString(reflectInstruction)
		sb.WriteString("\n\n")
		sb.WriteString(chapterChoicesInstruction)
	case models.ChapterTypeConclusion:
		sb.WriteString(conclusionInstruction)
	default:
		if chapterNumber == 1 {
			sb.WriteString(agencyChoicesInstruction)
			sb.WriteString("\n\n")
			for _, line := range agencyChoices {
				fmt.Fprintf(&sb, "- %s\n", line)
			}
			sb.WriteString("\n")
		}
		sb.WriteString(chapterChoicesInstruction)
	}

	return Prompt{System: systemNarrator, User: sb.String()}
}

// priorChapterContext renders full prior-chapter content, each followed by
// the option the user chose, so the generator sees the exact narrative
// thread.
func (b *Builder) priorChapterContext(state *models.AdventureState) string {
	if len(state.Chapters) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := range state.Chapters {
		ch := &state.Chapters[i]
		fmt.Fprintf(&sb, "--- Chapter %d ---\n%s\n", ch.ChapterNumber, ch.Content)
		if ch.Response != nil {
			switch {
			case ch.Response.ChoiceText != "":
				fmt.Fprintf(&sb, "[The protagonist chose: %s]\n", ch.Response.ChoiceText)
			case ch.Response.AnswerIndex != nil && ch.Question != nil:
				idx := *ch.Response.AnswerIndex
				if idx >= 0 && idx < len(ch.Question.Answers) {
					outcome := "incorrectly"
					if ch.Response.IsCorrect != nil && *ch.Response.IsCorrect {
						outcome = "correctly"
					}
					fmt.Fprintf(&sb, "[The protagonist answered %s: %s]\n", outcome, ch.Question.Answers[idx])
				}
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ComposeSummary builds the prompt that produces a chapter's recap title
// and summary. choiceContext is the text of the option the user took, or
// empty for the conclusion.
func (b *Builder) ComposeSummary(chapter *models.Chapter, choiceContext string) Prompt {
	var sb strings.Builder
	sb.WriteString(summaryTemplate)
	fmt.Fprintf(&sb, "\n\nChapter %d:\n%s\n", chapter.ChapterNumber, chapter.Content)
	if choiceContext != "" {
		fmt.Fprintf(&sb, "\nThe protagonist chose: %s\n", choiceContext)
	}
	return Prompt{System: systemNarrator, User: sb.String()}
}

// ComposeCharacterVisualUpdate builds the prompt that extracts or refines
// character visual descriptions from chapter content.
func (b *Builder) ComposeCharacterVisualUpdate(chapterContent string, existing map[string]string) Prompt {
	var sb strings.Builder
	sb.WriteString(visualUpdateTemplate)
	if len(existing) > 0 {
		sb.WriteString("\n\nKnown characters:\n")
		for name, desc := range existing {
			fmt.Fprintf(&sb, "- %s: %s\n", name, desc)
		}
	}
	fmt.Fprintf(&sb, "\nChapter:\n%s\n", chapterContent)
	return Prompt{System: systemNarrator, User: sb.String()}
}

// ComposeImageScene builds the prompt that extracts the chapter's most
// visual moment for illustration.
func (b *Builder) ComposeImageScene(chapterContent string) Prompt {
	return Prompt{
		System: systemNarrator,
		User:   imageSceneTemplate + "\n\nChapter:\n" + chapterContent + "\n",
	}
}

// ComposeImageSynthesis merges the extracted scene with protagonist,
// agency, and character visuals into a final image-generation prompt.
func (b *Builder) ComposeImageSynthesis(scene, protagonist string, agency models.Agency, visuals map[string]string, sensoryMood string) Prompt {
	var sb strings.Builder
	sb.WriteString(imageSynthesisTemplate)
	fmt.Fprintf(&sb, "\n\nScene: %s\n", scene)
	fmt.Fprintf(&sb, "Protagonist: %s\n", protagonist)
	if agency.IsSet() {
		fmt.Fprintf(&sb, "Agency: %s — %s\n", agency.Name, agency.VisualDetails)
	}
	for name, desc := range visuals {
		fmt.Fprintf(&sb, "Character %s: %s\n", name, desc)
	}
	if sensoryMood != "" {
		fmt.Fprintf(&sb, "Mood: %s\n", sensoryMood)
	}
	return Prompt{User: sb.String()}
}

// ComposeReformat builds the regeneration prompt used by the paragraph
// quality gate when streamed text arrives without paragraph structure.
func (b *Builder) ComposeReformat(original string) Prompt {
	return Prompt{
		System: systemNarrator,
		User:   reformatInstruction + "\n\n" + original,
	}
}
