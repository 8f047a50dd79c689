package api

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck is the status of one dependency.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// CatalogResponse is returned by GET /api/v1/catalog.
type CatalogResponse struct {
	Categories []CatalogCategory `json:"categories"`
	Topics     []CatalogTopic    `json:"topics"`
}

// CatalogCategory is one selectable story setting.
type CatalogCategory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CatalogTopic is one selectable lesson topic with its question count.
type CatalogTopic struct {
	Topic     string `json:"topic"`
	Questions int    `json:"questions"`
}

// SummaryResponse is returned by GET /api/v1/adventures/:id/summary.
type SummaryResponse struct {
	AdventureID   string           `json:"adventure_id"`
	StoryCategory string           `json:"story_category"`
	LessonTopic   string           `json:"lesson_topic"`
	Agency        string           `json:"agency,omitempty"`
	Chapters      []SummaryChapter `json:"chapters"`
	LessonResults []LessonResult   `json:"lesson_results,omitempty"`
}

// SummaryChapter is one chapter's recap on the summary page.
type SummaryChapter struct {
	Chapter     int    `json:"chapter"`
	ChapterType string `json:"chapter_type"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
}

// LessonResult is one answered educational question.
type LessonResult struct {
	Question      string `json:"question"`
	ChosenAnswer  string `json:"chosen_answer,omitempty"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
	Correct       bool   `json:"correct"`
}
