// Package planner produces the chapter-type sequence for a new adventure.
//
// Fixed slots: the first chapter and the penultimate chapter are STORY,
// the final chapter is CONCLUSION. The flexible middle interleaves LESSON
// and REFLECT chapters under the constraints validated by
// models.ValidatePlan.
package planner

import (
	"errors"
	"fmt"

	"github.com/DesmondChoy/odyssey/pkg/models"
)

// ErrInvalidConfiguration is returned when the story length cannot satisfy
// the fixed-slot constraints.
var ErrInvalidConfiguration = errors.New("invalid planner configuration")

// Plan builds the full chapter-type sequence for storyLength chapters.
// availableQuestions caps the number of LESSON slots. Warnings report
// non-fatal degradations (question shortfall, structural fallback) for the
// caller to forward to telemetry.
func Plan(storyLength, availableQuestions int) ([]models.ChapterType, []string, error) {
	if storyLength < models.MinStoryLength {
		return nil, nil, fmt.Errorf("%w: story length %d below minimum %d",
			ErrInvalidConfiguration, storyLength, models.MinStoryLength)
	}

	var warnings []string

	middle := storyLength - 3 // slots 1 .. storyLength-3, zero-based
	lessonTarget := (storyLength - 2) / 2
	if availableQuestions < lessonTarget {
		if availableQuestions > 0 {
			warnings = append(warnings, fmt.Sprintf(
				"only %d questions available for %d planned lesson slots; excess slots become story",
				availableQuestions, lessonTarget))
		} else {
			warnings = append(warnings,
				"no questions available; all lesson slots become story")
		}
		lessonTarget = availableQuestions
	}

	plan := buildPlan(storyLength, middle, lessonTarget)

	if err := models.ValidatePlan(plan); err != nil {
		// Should be unreachable given the constructive placement; degrade to
		// an all-story middle rather than failing the session.
		warnings = append(warnings, fmt.Sprintf("plan validation failed (%v); using all-story middle", err))
		plan = allStoryPlan(storyLength)
	}

	return plan, warnings, nil
}

// buildPlan constructs the sequence, reducing the lesson count until the
// lesson/reflect pattern fits the middle. Each reduction step keeps the
// reflect quota at half the lessons (at least one when two or more lessons
// are placed), matching the target of ~50% of lessons followed by a
// reflect.
func buildPlan(storyLength, middle, lessonTarget int) []models.ChapterType {
	for lessons := lessonTarget; lessons >= 0; lessons-- {
		reflects := lessons / 2
		for r := reflects; ; r-- {
			plan, ok := construct(storyLength, middle, lessons, r)
			if ok {
				return plan
			}
			if r <= minReflects(lessons) {
				break
			}
		}
	}
	return allStoryPlan(storyLength)
}

func minReflects(lessons int) int {
	if lessons >= 2 {
		return 1
	}
	return 0
}

// construct attempts an exact placement of the requested lesson and
// reflect counts across the middle. Placement walks left to right: a
// lesson, optionally its reflect, then the story slot a reflect forces.
func construct(storyLength, middle, lessons, reflects int) ([]models.ChapterType, bool) {
	if reflects < minReflects(lessons) {
		return nil, false
	}
	plan := allStoryPlan(storyLength)

	placedLessons, placedReflects := 0, 0
	i := 1 // first middle slot
	last := middle // last middle slot index
	for i <= last && placedLessons < lessons {
		plan[i] = models.ChapterTypeLesson
		placedLessons++
		if placedReflects < reflects && i+1 <= last {
			plan[i+1] = models.ChapterTypeReflect
			placedReflects++
			i += 3 // reflect is followed by a story slot
		} else {
			i += 2 // story gap prevents adjacent lessons
		}
	}

	if placedLessons != lessons || placedReflects != reflects {
		return nil, false
	}
	return plan, true
}

func allStoryPlan(storyLength int) []models.ChapterType {
	plan := make([]models.ChapterType, storyLength)
	for i := range plan {
		plan[i] = models.ChapterTypeStory
	}
	plan[storyLength-1] = models.ChapterTypeConclusion
	return plan
}
