package api

import (
	"net/http"
	"sort"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/DesmondChoy/odyssey/pkg/models"
	"github.com/DesmondChoy/odyssey/pkg/story"
)

// catalogHandler handles GET /api/v1/catalog. It lists the selectable
// story categories and lesson topics so clients render the selection
// screen from server data instead of hardcoding it.
func (s *Server) catalogHandler(c *echo.Context) error {
	categories := make([]CatalogCategory, 0, len(story.Categories))
	for _, cat := range story.Categories {
		categories = append(categories, CatalogCategory{
			ID:          cat.ID,
			Name:        cat.Name,
			Description: cat.Description,
		})
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })

	topics := make([]CatalogTopic, 0)
	for _, t := range s.questions.Topics() {
		topics = append(topics, CatalogTopic{
			Topic:     t,
			Questions: s.questions.Available(t),
		})
	}

	return c.JSON(http.StatusOK, &CatalogResponse{
		Categories: categories,
		Topics:     topics,
	})
}

// summaryHandler handles GET /api/v1/adventures/:id/summary. The id is
// the state id delivered in the summary_ready frame; the summary is only
// available once the adventure has completed.
func (s *Server) summaryHandler(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid adventure id")
	}

	state, _, err := s.store.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	if !state.IsComplete {
		return echo.NewHTTPError(http.StatusConflict, "adventure is not complete")
	}

	resp := &SummaryResponse{
		AdventureID:   state.AdventureID.String(),
		StoryCategory: state.StoryCategory,
		LessonTopic:   state.LessonTopic,
		Agency:        state.Metadata.Agency.Name,
	}
	for i, ch := range state.Chapters {
		entry := SummaryChapter{
			Chapter:     ch.ChapterNumber,
			ChapterType: string(ch.ChapterType),
		}
		if i < len(state.SummaryChapterTitles) {
			entry.Title = state.SummaryChapterTitles[i]
		}
		if i < len(state.ChapterSummaries) {
			entry.Summary = state.ChapterSummaries[i]
		}
		resp.Chapters = append(resp.Chapters, entry)

		if ch.ChapterType != models.ChapterTypeLesson || ch.Question == nil {
			continue
		}
		q := LessonResult{
			Question:      ch.Question.Question,
			CorrectAnswer: ch.Question.Answers[ch.Question.CorrectIndex],
			Explanation:   ch.Question.Explanation,
		}
		if ch.Response != nil && ch.Response.AnswerIndex != nil {
			idx := *ch.Response.AnswerIndex
			if idx >= 0 && idx < len(ch.Question.Answers) {
				q.ChosenAnswer = ch.Question.Answers[idx]
			}
			if ch.Response.IsCorrect != nil {
				q.Correct = *ch.Response.IsCorrect
			}
		}
		resp.LessonResults = append(resp.LessonResults, q)
	}

	return c.JSON(http.StatusOK, resp)
}
