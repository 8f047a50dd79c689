package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DesmondChoy/odyssey/pkg/models"
)

func testState(userID, clientUUID string) *models.AdventureState {
	return &models.AdventureState{
		UserID:        userID,
		ClientUUID:    clientUUID,
		StoryCategory: "enchanted_forest",
		LessonTopic:   "Farm Animals",
		StoryLength:   4,
		PlannedChapterTypes: []models.ChapterType{
			models.ChapterTypeStory,
			models.ChapterTypeLesson,
			models.ChapterTypeStory,
			models.ChapterTypeConclusion,
		},
		ProtagonistDescription: "a curious child with a patched satchel",
	}
}

func TestAdventureStoreUpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := NewAdventureStore(db, "test", nil)
	ctx := context.Background()

	state := testState(uuid.New().String(), "")
	require.NoError(t, store.Upsert(ctx, state))
	require.NotEqual(t, uuid.Nil, state.AdventureID)

	loaded, repairs, err := store.Get(ctx, state.AdventureID)
	require.NoError(t, err)
	assert.Empty(t, repairs)
	assert.Equal(t, state.AdventureID, loaded.AdventureID)
	assert.Equal(t, "enchanted_forest", loaded.StoryCategory)
	assert.Equal(t, state.PlannedChapterTypes, loaded.PlannedChapterTypes)
	assert.False(t, loaded.IsComplete)
}

func TestAdventureStoreUpdatePersistsChapters(t *testing.T) {
	db := setupTestDB(t)
	store := NewAdventureStore(db, "test", nil)
	ctx := context.Background()

	state := testState("", uuid.New().String())
	require.NoError(t, store.Upsert(ctx, state))

	require.NoError(t, state.AppendChapter(models.Chapter{
		ChapterNumber: 1,
		ChapterType:   models.ChapterTypeStory,
		Content:       "The forest gate creaked open.",
		Choices: []models.Choice{
			{ID: "chapter_1_0", Text: "Step through"},
			{ID: "chapter_1_1", Text: "Call out"},
			{ID: "chapter_1_2", Text: "Wait"},
		},
	}))
	require.NoError(t, store.Upsert(ctx, state))

	loaded, _, err := store.Get(ctx, state.AdventureID)
	require.NoError(t, err)
	require.Len(t, loaded.Chapters, 1)
	assert.Equal(t, "The forest gate creaked open.", loaded.Chapters[0].Content)
	assert.Len(t, loaded.Chapters[0].Choices, 3)
}

func TestAdventureStoreOptimisticConflict(t *testing.T) {
	db := setupTestDB(t)
	store := NewAdventureStore(db, "test", nil)
	ctx := context.Background()

	state := testState(uuid.New().String(), "")
	require.NoError(t, store.Upsert(ctx, state))

	// Two loads of the same adventure, each with the original token.
	first, _, err := store.Get(ctx, state.AdventureID)
	require.NoError(t, err)
	second, _, err := store.Get(ctx, state.AdventureID)
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, first))

	err = store.Upsert(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateConflict)

	// Reload and retry resolves the conflict.
	reloaded, _, err := store.Get(ctx, state.AdventureID)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, reloaded))
}

func TestAdventureStoreFindActive(t *testing.T) {
	db := setupTestDB(t)
	store := NewAdventureStore(db, "test", nil)
	ctx := context.Background()
	userID := uuid.New().String()

	older := testState(userID, "")
	require.NoError(t, store.Upsert(ctx, older))

	time.Sleep(10 * time.Millisecond)

	newer := testState(userID, "")
	require.NoError(t, store.Upsert(ctx, newer))

	found, _, err := store.FindActive(ctx, userID, "", "enchanted_forest", "Farm Animals")
	require.NoError(t, err)
	assert.Equal(t, newer.AdventureID, found.AdventureID)

	t.Run("completed adventures are excluded", func(t *testing.T) {
		newer.IsComplete = true
		require.NoError(t, store.Upsert(ctx, newer))

		found, _, err := store.FindActive(ctx, userID, "", "enchanted_forest", "Farm Animals")
		require.NoError(t, err)
		assert.Equal(t, older.AdventureID, found.AdventureID)
	})

	t.Run("different selection inputs do not match", func(t *testing.T) {
		_, _, err := store.FindActive(ctx, userID, "", "jade_mountain", "Farm Animals")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no identity yields not found", func(t *testing.T) {
		_, _, err := store.FindActive(ctx, "", "", "enchanted_forest", "Farm Animals")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAdventureStoreFindActiveByClientUUID(t *testing.T) {
	db := setupTestDB(t)
	store := NewAdventureStore(db, "test", nil)
	ctx := context.Background()
	clientUUID := uuid.New().String()

	state := testState("", clientUUID)
	require.NoError(t, store.Upsert(ctx, state))

	found, _, err := store.FindActive(ctx, "", clientUUID, "enchanted_forest", "Farm Animals")
	require.NoError(t, err)
	assert.Equal(t, state.AdventureID, found.AdventureID)
}

func TestTelemetryServiceRecord(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTelemetryService(db, "test", nil)
	ctx := context.Background()

	event := models.NewTelemetryEvent(models.EventAdventureStarted, uuid.New(),
		uuid.New().String(), map[string]any{"story_category": "enchanted_forest"})
	require.NoError(t, svc.Record(ctx, event))

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM telemetry_events WHERE event_type = $1`,
		models.EventAdventureStarted).Scan(&count))
	assert.Equal(t, 1, count)
}
