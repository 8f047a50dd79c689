package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientFrame(t *testing.T) {
	t.Run("start sentinel", func(t *testing.T) {
		choice, err := ParseClientFrame([]byte(`{"choice": "start"}`))
		require.NoError(t, err)
		assert.Equal(t, ChoiceKindStart, choice.Kind)
	})

	t.Run("reveal summary sentinel", func(t *testing.T) {
		choice, err := ParseClientFrame([]byte(`{"choice": "reveal_summary"}`))
		require.NoError(t, err)
		assert.Equal(t, ChoiceKindRevealSummary, choice.Kind)
	})

	t.Run("narrative choice", func(t *testing.T) {
		choice, err := ParseClientFrame([]byte(
			`{"choice": {"chosen_path": "chapter_3_1", "choice_text": "Cross the bridge."}}`))
		require.NoError(t, err)
		assert.Equal(t, ChoiceKindNarrative, choice.Kind)
		assert.Equal(t, "chapter_3_1", choice.ChosenPath)
		assert.Equal(t, "Cross the bridge.", choice.ChoiceText)
	})

	t.Run("lesson answer index", func(t *testing.T) {
		choice, err := ParseClientFrame([]byte(`{"choice": 2}`))
		require.NoError(t, err)
		assert.Equal(t, ChoiceKindLessonAnswer, choice.Kind)
		assert.Equal(t, 2, choice.AnswerIndex)
	})

	t.Run("state blob is carried but advisory", func(t *testing.T) {
		choice, err := ParseClientFrame([]byte(
			`{"state": {"current_chapter": 9}, "choice": "start"}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"current_chapter": 9}`, string(choice.StateSnapshot))
	})

	t.Run("rejects unknown sentinel", func(t *testing.T) {
		_, err := ParseClientFrame([]byte(`{"choice": "restart"}`))
		assert.Error(t, err)
	})

	t.Run("rejects negative answer index", func(t *testing.T) {
		_, err := ParseClientFrame([]byte(`{"choice": -1}`))
		assert.Error(t, err)
	})

	t.Run("rejects narrative choice without path", func(t *testing.T) {
		_, err := ParseClientFrame([]byte(`{"choice": {"choice_text": "text only"}}`))
		assert.Error(t, err)
	})

	t.Run("rejects missing choice", func(t *testing.T) {
		_, err := ParseClientFrame([]byte(`{"state": {}}`))
		assert.Error(t, err)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		_, err := ParseClientFrame([]byte(`{"choice": `))
		assert.Error(t, err)
	})
}

func TestOutboundFrameShapes(t *testing.T) {
	t.Run("chapter update", func(t *testing.T) {
		data, err := json.Marshal(NewChapterUpdateFrame(3, 10))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type": "chapter_update", "current_chapter": 3, "total_chapters": 10}`, string(data))
	})

	t.Run("choices", func(t *testing.T) {
		data, err := json.Marshal(NewChoicesFrame([]Choice{{ID: "chapter_2_0", Text: "Go left."}}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type": "choices", "choices": [{"id": "chapter_2_0", "text": "Go left."}]}`, string(data))
	})

	t.Run("error", func(t *testing.T) {
		data, err := json.Marshal(NewErrorFrame("generation_failed", "try again"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type": "error", "kind": "generation_failed", "message": "try again"}`, string(data))
	})
}
