package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DesmondChoy/odyssey/pkg/models"
)

func TestAdventureWSRejectsBadRequests(t *testing.T) {
	s := newTestServer(t, newFakeStore(), nil, nil)

	cases := []struct {
		name   string
		target string
		code   int
	}{
		{"unknown category", "/ws/adventure?story_category=moon_base&lesson_topic=Farm+Animals&client_uuid=c1", http.StatusBadRequest},
		{"unknown topic", "/ws/adventure?story_category=enchanted_forest&lesson_topic=Quantum+Physics&client_uuid=c1", http.StatusBadRequest},
		{"missing client uuid", "/ws/adventure?story_category=enchanted_forest&lesson_topic=Farm+Animals", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodGet, tc.target)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestAdventureWSRejectsBadToken(t *testing.T) {
	s := newTestServer(t, newFakeStore(), nil, rejectingVerifier{})

	rec := doRequest(s, http.MethodGet,
		"/ws/adventure?story_category=enchanted_forest&lesson_topic=Farm+Animals&client_uuid=c1&token=stale")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestAdventureWSMalformedFrameGetsErrorFrame sends garbage over the
// socket and expects a protocol error frame with the session intact.
func TestAdventureWSMalformedFrameGetsErrorFrame(t *testing.T) {
	store := newFakeStore()
	gen := &scriptedGenerator{chapters: []string{wsChapterOne}}
	s := newTestServer(t, store, gen, nil)

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	url := "ws" + server.URL[len("http"):] +
		"/ws/adventure?story_category=enchanted_forest&lesson_topic=Farm+Animals&client_uuid=ws-test-2"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"choice": `)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, models.FrameTypeError, frame["type"])
	assert.Equal(t, "client_protocol_error", frame["kind"])

	// The session survives; a valid start frame still streams chapter 1.
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"choice": "start"}`)))
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var f map[string]any
		if json.Unmarshal(data, &f) != nil || f["type"] == nil {
			continue
		}
		if f["type"] == models.FrameTypeChapterUpdate {
			assert.EqualValues(t, 1, f["current_chapter"])
			return
		}
	}
}

const wsChapterOne = "The forest gate creaked open and the adventure began in earnest.\n\n" +
	"<choices>\nA) Follow the lantern moths deeper in.\nB) Climb the watch tree for a better view.\nC) Call out to whoever lit the lanterns.\n</choices>"

// TestAdventureWSStreamsFirstChapter dials a real WebSocket, sends the
// start frame, and walks the first chapter's frame sequence.
func TestAdventureWSStreamsFirstChapter(t *testing.T) {
	store := newFakeStore()
	gen := &scriptedGenerator{chapters: []string{wsChapterOne}}
	s := newTestServer(t, store, gen, nil)

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	url := "ws" + server.URL[len("http"):] +
		"/ws/adventure?story_category=enchanted_forest&lesson_topic=Farm+Animals&client_uuid=ws-test-1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"choice": "start"}`)))

	var sawUpdate, sawText, sawReplace bool
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var frame map[string]any
		if json.Unmarshal(data, &frame) != nil || frame["type"] == nil {
			sawText = true
			assert.True(t, sawUpdate, "chapter_update must precede streamed text")
			continue
		}
		switch frame["type"] {
		case models.FrameTypeChapterUpdate:
			sawUpdate = true
			assert.EqualValues(t, 1, frame["current_chapter"])
			assert.EqualValues(t, 4, frame["total_chapters"])
		case models.FrameTypeReplaceContent:
			sawReplace = true
			assert.True(t, sawText, "replace_content must follow the stream")
			assert.NotContains(t, frame["content"], "<choices>")
		case models.FrameTypeChoices:
			assert.True(t, sawReplace, "choices must follow replace_content")
			choices, ok := frame["choices"].([]any)
			require.True(t, ok)
			assert.Len(t, choices, 3)
			return
		}
	}
}
