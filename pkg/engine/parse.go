package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DesmondChoy/odyssey/pkg/models"
)

var (
	choicesBlockRe = regexp.MustCompile(`(?s)<choices>\s*(.*?)\s*</choices>`)
	choiceLineRe   = regexp.MustCompile(`^[A-Ca-c][\).]\s*(.+)$`)
)

// extractChoices pulls the trailing choice block out of generated chapter
// text. It returns the cleaned narrative (marker block removed) and the
// parsed choices with stable IDs for chapterNumber.
func extractChoices(text string, chapterNumber int) (clean string, choices []models.Choice) {
	match := choicesBlockRe.FindStringSubmatchIndex(text)
	if match == nil {
		return strings.TrimSpace(text), nil
	}

	block := text[match[2]:match[3]]
	clean = strings.TrimSpace(text[:match[0]] + text[match[1]:])

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := choiceLineRe.FindStringSubmatch(line); m != nil {
			choices = append(choices, models.Choice{
				ID:   choiceID(chapterNumber, len(choices)),
				Text: strings.TrimSpace(m[1]),
			})
		}
	}
	return clean, choices
}

func choiceID(chapterNumber, index int) string {
	return fmt.Sprintf("chapter_%d_%d", chapterNumber, index)
}

// chapterOfChoiceID recovers the chapter number a choice ID addresses,
// or 0 when the ID does not follow the chapter_N_i scheme.
func chapterOfChoiceID(id string) int {
	var chapter, index int
	if _, err := fmt.Sscanf(id, "chapter_%d_%d", &chapter, &index); err != nil {
		return 0
	}
	return chapter
}

// fallbackChoices covers generations that omitted the choice block, so
// the session never dead-ends waiting on options that do not exist.
func fallbackChoices(chapterNumber int) []models.Choice {
	texts := []string{
		"Press onward along the path ahead.",
		"Stop and look more closely at the surroundings.",
		"Take the way less traveled.",
	}
	choices := make([]models.Choice, 0, len(texts))
	for i, t := range texts {
		choices = append(choices, models.Choice{ID: choiceID(chapterNumber, i), Text: t})
	}
	return choices
}

// questionChoices binds a lesson question's answers as the chapter's
// choice set, preserving answer order.
func questionChoices(q *models.LessonQuestion, chapterNumber int) []models.Choice {
	choices := make([]models.Choice, 0, len(q.Answers))
	for i, a := range q.Answers {
		choices = append(choices, models.Choice{ID: choiceID(chapterNumber, i), Text: a})
	}
	return choices
}
