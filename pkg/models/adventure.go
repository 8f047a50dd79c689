// Package models defines the adventure domain types shared across the
// planner, engine, stores, and API layers.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChapterType classifies a chapter slot in the planned sequence.
type ChapterType string

// Chapter type constants.
const (
	ChapterTypeStory      ChapterType = "story"
	ChapterTypeLesson     ChapterType = "lesson"
	ChapterTypeReflect    ChapterType = "reflect"
	ChapterTypeConclusion ChapterType = "conclusion"
)

// Valid reports whether t is a known chapter type.
func (t ChapterType) Valid() bool {
	switch t {
	case ChapterTypeStory, ChapterTypeLesson, ChapterTypeReflect, ChapterTypeConclusion:
		return true
	}
	return false
}

// StorytellingPhase is the coarse narrative position derived from the
// chapter index. It shapes prompt guidance, never state transitions.
type StorytellingPhase string

// Storytelling phase constants.
const (
	PhaseExposition StorytellingPhase = "exposition"
	PhaseRising     StorytellingPhase = "rising"
	PhaseTrials     StorytellingPhase = "trials"
	PhaseClimax     StorytellingPhase = "climax"
	PhaseReturn     StorytellingPhase = "return"
)

// Choice is a selectable narrative path presented at the end of a
// STORY or REFLECT chapter.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// LessonQuestion is a single educational question. For LESSON chapters the
// answers are the only choices.
type LessonQuestion struct {
	Topic        string   `json:"topic"`
	Question     string   `json:"question"`
	Answers      []string `json:"answers"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// ChapterResponse records the user's reaction to a chapter. Exactly one of
// the narrative pair (ChosenPath/ChoiceText) or AnswerIndex is meaningful,
// discriminated by the owning chapter's type.
type ChapterResponse struct {
	ChosenPath  string `json:"chosen_path,omitempty"`
	ChoiceText  string `json:"choice_text,omitempty"`
	AnswerIndex *int   `json:"answer_index,omitempty"`
	IsCorrect   *bool  `json:"is_correct,omitempty"`
	RespondedAt string `json:"responded_at,omitempty"`
}

// Chapter is one generated chapter of the adventure.
//
// STORY and REFLECT chapters carry exactly three choices. LESSON chapters
// carry a question whose answers are bound as the choice set. CONCLUSION
// chapters carry neither choices nor a response.
type Chapter struct {
	ChapterNumber int              `json:"chapter_number"`
	ChapterType   ChapterType      `json:"chapter_type"`
	Content       string           `json:"content"`
	Choices       []Choice         `json:"choices,omitempty"`
	Question      *LessonQuestion  `json:"question,omitempty"`
	Response      *ChapterResponse `json:"response,omitempty"`
}

// Agency is the power/companion/profession/artifact chosen in response to
// Chapter 1. Category and Name are never overwritten once set.
type Agency struct {
	Category      string `json:"category,omitempty"`
	Name          string `json:"name,omitempty"`
	VisualDetails string `json:"visual_details,omitempty"`
	Description   string `json:"description,omitempty"`
}

// IsSet reports whether the agency has been recorded.
func (a Agency) IsSet() bool {
	return a.Name != "" || a.Description != ""
}

// Metadata holds per-adventure auxiliary state.
type Metadata struct {
	Agency Agency `json:"agency"`
}

// AdventureState is the single authoritative record for one session.
// It is mutated exclusively by the owning SessionEngine; background tasks
// route changes through the engine's serialized update channel.
type AdventureState struct {
	AdventureID uuid.UUID `json:"adventure_id"`
	ClientUUID  string    `json:"client_uuid,omitempty"`
	UserID      string    `json:"user_id,omitempty"`

	StoryCategory string `json:"story_category"`
	LessonTopic   string `json:"lesson_topic"`
	StoryLength   int    `json:"story_length"`

	PlannedChapterTypes []ChapterType `json:"planned_chapter_types"`
	Chapters            []Chapter     `json:"chapters"`

	ProtagonistDescription string            `json:"protagonist_description"`
	CharacterVisuals       map[string]string `json:"character_visuals,omitempty"`
	Metadata               Metadata          `json:"metadata"`

	ChapterSummaries     []string         `json:"chapter_summaries,omitempty"`
	SummaryChapterTitles []string         `json:"summary_chapter_titles,omitempty"`
	LessonQuestions      []LessonQuestion `json:"lesson_questions,omitempty"`

	IsComplete bool      `json:"is_complete"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MinStoryLength is the smallest story length that can satisfy the fixed
// first/penultimate/final slot constraints.
const MinStoryLength = 4

// CurrentPhase derives the storytelling phase for the chapter currently
// being generated (1-based). The first chapter is always exposition and the
// final chapter the return; the middle splits into rising, trials, climax.
func (s *AdventureState) CurrentPhase(chapterNumber int) StorytellingPhase {
	return PhaseForChapter(chapterNumber, s.StoryLength)
}

// PhaseForChapter maps a 1-based chapter number onto a storytelling phase.
func PhaseForChapter(chapterNumber, storyLength int) StorytellingPhase {
	if chapterNumber <= 1 {
		return PhaseExposition
	}
	if chapterNumber >= storyLength {
		return PhaseReturn
	}
	// Middle chapters: fractional position across (1, storyLength).
	frac := float64(chapterNumber-1) / float64(storyLength-1)
	switch {
	case frac < 0.4:
		return PhaseRising
	case frac < 0.75:
		return PhaseTrials
	default:
		return PhaseClimax
	}
}

// LastChapter returns the most recently appended chapter, or nil.
func (s *AdventureState) LastChapter() *Chapter {
	if len(s.Chapters) == 0 {
		return nil
	}
	return &s.Chapters[len(s.Chapters)-1]
}

// NextChapterNumber is the 1-based number of the chapter to generate next.
func (s *AdventureState) NextChapterNumber() int {
	return len(s.Chapters) + 1
}

// AppendChapter appends a chapter, enforcing numbering and plan conformance.
func (s *AdventureState) AppendChapter(ch Chapter) error {
	idx := len(s.Chapters)
	if idx >= s.StoryLength {
		return fmt.Errorf("chapter %d exceeds story length %d", ch.ChapterNumber, s.StoryLength)
	}
	if ch.ChapterNumber != idx+1 {
		return fmt.Errorf("chapter number %d does not follow %d appended chapters", ch.ChapterNumber, idx)
	}
	if idx < len(s.PlannedChapterTypes) && ch.ChapterType != s.PlannedChapterTypes[idx] {
		return fmt.Errorf("chapter %d type %q does not match planned type %q",
			ch.ChapterNumber, ch.ChapterType, s.PlannedChapterTypes[idx])
	}
	s.Chapters = append(s.Chapters, ch)
	return nil
}

// RecordResponse stores the response for chapter n (1-based). Recording a
// response for a chapter that already has one is a no-op, which makes
// duplicate choice frames idempotent.
func (s *AdventureState) RecordResponse(chapterNumber int, resp ChapterResponse) (recorded bool, err error) {
	if chapterNumber < 1 || chapterNumber > len(s.Chapters) {
		return false, fmt.Errorf("no chapter %d to respond to", chapterNumber)
	}
	ch := &s.Chapters[chapterNumber-1]
	if ch.ChapterType == ChapterTypeConclusion {
		return false, fmt.Errorf("conclusion chapter takes no response")
	}
	if ch.Response != nil {
		return false, nil
	}
	resp.RespondedAt = time.Now().UTC().Format(time.RFC3339Nano)
	ch.Response = &resp
	return true, nil
}

// CompletedChapterCount counts chapters the user has finished: responded
// chapters, plus a streamed CONCLUSION which takes no response.
func (s *AdventureState) CompletedChapterCount() int {
	n := 0
	for i := range s.Chapters {
		ch := &s.Chapters[i]
		if ch.Response != nil || ch.ChapterType == ChapterTypeConclusion {
			n++
		}
	}
	return n
}

// SetAgency records the agency exactly once. Later calls refine only the
// visual details and description; category and name are immutable.
func (s *AdventureState) SetAgency(a Agency) {
	if s.Metadata.Agency.IsSet() {
		if s.Metadata.Agency.VisualDetails == "" && a.VisualDetails != "" {
			s.Metadata.Agency.VisualDetails = a.VisualDetails
		}
		return
	}
	s.Metadata.Agency = a
}

// MergeCharacterVisuals folds extracted visuals into the state map.
// Entries are monotonic: existing characters may be refined but never
// removed, and an empty description never clobbers a populated one.
func (s *AdventureState) MergeCharacterVisuals(update map[string]string) {
	if len(update) == 0 {
		return
	}
	if s.CharacterVisuals == nil {
		s.CharacterVisuals = make(map[string]string, len(update))
	}
	for name, desc := range update {
		if name == "" || desc == "" {
			continue
		}
		s.CharacterVisuals[name] = desc
	}
}

// QuestionUsed reports whether a question with the same text has already
// been bound to a chapter in this session.
func (s *AdventureState) QuestionUsed(text string) bool {
	for _, q := range s.LessonQuestions {
		if q.Question == text {
			return true
		}
	}
	return false
}
