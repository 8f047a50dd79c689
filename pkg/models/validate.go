package models

import (
	"fmt"
)

// ValidatePlan checks the structural invariants of a planned chapter-type
// sequence: fixed first/penultimate/final slots, no adjacent lessons,
// every reflect preceded by a lesson and followed by a story, and at least
// one reflect when two or more lessons are planned.
func ValidatePlan(plan []ChapterType) error {
	length := len(plan)
	if length < MinStoryLength {
		return fmt.Errorf("plan length %d below minimum %d", length, MinStoryLength)
	}
	if plan[0] != ChapterTypeStory {
		return fmt.Errorf("first chapter must be story, got %q", plan[0])
	}
	if plan[length-1] != ChapterTypeConclusion {
		return fmt.Errorf("final chapter must be conclusion, got %q", plan[length-1])
	}
	if plan[length-2] != ChapterTypeStory {
		return fmt.Errorf("penultimate chapter must be story, got %q", plan[length-2])
	}

	lessons, reflects := 0, 0
	for i, t := range plan {
		if !t.Valid() {
			return fmt.Errorf("slot %d has unknown chapter type %q", i, t)
		}
		if t == ChapterTypeConclusion && i != length-1 {
			return fmt.Errorf("conclusion at slot %d, only the final slot may conclude", i)
		}
		switch t {
		case ChapterTypeLesson:
			lessons++
			if i > 0 && plan[i-1] == ChapterTypeLesson {
				return fmt.Errorf("adjacent lessons at slots %d and %d", i-1, i)
			}
		case ChapterTypeReflect:
			reflects++
			if i == 0 || plan[i-1] != ChapterTypeLesson {
				return fmt.Errorf("reflect at slot %d not preceded by a lesson", i)
			}
			if i+1 >= length || plan[i+1] != ChapterTypeStory {
				return fmt.Errorf("reflect at slot %d not followed by a story", i)
			}
		}
	}
	if lessons >= 2 && reflects == 0 {
		return fmt.Errorf("%d lessons planned but no reflect", lessons)
	}
	return nil
}

// Validate checks an AdventureState loaded from storage. It reports the
// first violation found; callers decide whether to repair or reject.
func (s *AdventureState) Validate() error {
	if s.StoryLength < MinStoryLength {
		return fmt.Errorf("story length %d below minimum %d", s.StoryLength, MinStoryLength)
	}
	if s.StoryCategory == "" || s.LessonTopic == "" {
		return fmt.Errorf("missing selection inputs")
	}
	if len(s.PlannedChapterTypes) != s.StoryLength {
		return fmt.Errorf("planned sequence length %d does not match story length %d",
			len(s.PlannedChapterTypes), s.StoryLength)
	}
	if err := ValidatePlan(s.PlannedChapterTypes); err != nil {
		return fmt.Errorf("planned sequence invalid: %w", err)
	}
	if len(s.Chapters) > s.StoryLength {
		return fmt.Errorf("%d chapters exceed story length %d", len(s.Chapters), s.StoryLength)
	}
	for i := range s.Chapters {
		ch := &s.Chapters[i]
		if ch.ChapterNumber != i+1 {
			return fmt.Errorf("chapter at index %d numbered %d", i, ch.ChapterNumber)
		}
		if ch.ChapterType != s.PlannedChapterTypes[i] {
			return fmt.Errorf("chapter %d type %q diverges from plan %q",
				ch.ChapterNumber, ch.ChapterType, s.PlannedChapterTypes[i])
		}
	}
	return nil
}

// Repair reconstructs a minimum-viable state from a partially corrupted
// load: missing maps are allocated, chapter numbering is rewritten to match
// position, and chapters beyond the story length are truncated. It returns
// the list of repairs applied (empty when the state was already sound).
func (s *AdventureState) Repair() []string {
	var repairs []string

	if s.CharacterVisuals == nil {
		s.CharacterVisuals = make(map[string]string)
	}
	if s.StoryLength >= MinStoryLength && len(s.Chapters) > s.StoryLength {
		s.Chapters = s.Chapters[:s.StoryLength]
		repairs = append(repairs, "truncated chapters to story length")
	}
	for i := range s.Chapters {
		if s.Chapters[i].ChapterNumber != i+1 {
			s.Chapters[i].ChapterNumber = i + 1
			repairs = append(repairs, fmt.Sprintf("renumbered chapter at index %d", i))
		}
	}
	// A divergent plan cannot be reconciled with generated chapters; force
	// the plan to agree with what was actually generated and leave the
	// remaining slots for the engine to re-plan.
	if len(s.PlannedChapterTypes) == s.StoryLength {
		for i := range s.Chapters {
			if s.Chapters[i].ChapterType != s.PlannedChapterTypes[i] {
				s.PlannedChapterTypes[i] = s.Chapters[i].ChapterType
				repairs = append(repairs, fmt.Sprintf("realigned planned type at slot %d", i))
			}
		}
	}
	return repairs
}
