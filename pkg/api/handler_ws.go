package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/DesmondChoy/odyssey/pkg/engine"
	"github.com/DesmondChoy/odyssey/pkg/models"
	"github.com/DesmondChoy/odyssey/pkg/scheduler"
	"github.com/DesmondChoy/odyssey/pkg/services"
	"github.com/DesmondChoy/odyssey/pkg/story"
)

// inboundQueueSize buffers choices that arrive while a chapter streams;
// they apply in order once the stream finishes.
const inboundQueueSize = 8

// adventureWSHandler handles GET /ws/adventure. It authenticates and
// validates the selection before upgrading, resolves a resumable
// adventure or starts a fresh one, then runs the session engine until
// the connection or the adventure ends.
func (s *Server) adventureWSHandler(c *echo.Context) error {
	category := c.QueryParam("story_category")
	topic := c.QueryParam("lesson_topic")
	clientUUID := c.QueryParam("client_uuid")

	if _, ok := story.Categories[category]; !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown story category")
	}
	if !s.knownTopic(topic) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown lesson topic")
	}
	if clientUUID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client_uuid is required")
	}

	userID, err := s.verifier.Verify(c.Request().Context(), bearerToken(c))
	if err != nil {
		s.logger.Warn("rejected connection", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	state, repairs, err := s.resolveState(c.Request().Context(), userID, clientUUID, category, topic)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve adventure")
	}
	for _, r := range repairs {
		s.telemetry.RecordAsync(models.NewTelemetryEvent(models.EventStateRepaired,
			state.AdventureID, userID, map[string]any{"repair": r}))
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin validation is delegated to the fronting proxy.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	s.runSession(c.Request().Context(), conn, state)
	return nil
}

// runSession owns the connection lifecycle: a read loop feeding parsed
// choices to the engine, and the engine loop driving generation.
func (s *Server) runSession(ctx context.Context, conn *websocket.Conn, state *models.AdventureState) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := s.logger.With("adventure_id", state.AdventureID, "client_uuid", state.ClientUUID)
	wc := newWSConn(conn)

	inbound := make(chan *models.ClientChoice, inboundQueueSize)
	go func() {
		defer close(inbound)
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
					return
				}
				logger.Debug("read loop ended", "error", err)
				return
			}
			choice, err := models.ParseClientFrame(data)
			if err != nil {
				// Malformed frames leave the story untouched; the client
				// hears why and the session continues.
				logger.Warn("malformed client frame", "error", err)
				frame := models.NewErrorFrame("client_protocol_error", "Unrecognized message; the story is unchanged.")
				if serr := wc.SendJSON(ctx, frame); serr != nil {
					return
				}
				continue
			}
			select {
			case inbound <- choice:
			case <-ctx.Done():
				return
			}
		}
	}()

	sched := scheduler.New(logger)
	eng := engine.New(state, wc, s.store, s.telemetry,
		s.textGen, s.imageGen, s.questions, sched, s.sessionConfig(), logger)

	err := eng.Run(ctx, inbound)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "adventure complete")
	case errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "connection closed")
	default:
		logger.Error("session ended with error", "error", err)
		conn.Close(websocket.StatusInternalError, "session error")
	}
}

// resolveState finds an unfinished adventure matching the identity and
// selection, or builds a fresh state when none exists. A resumed state
// with a different selection is never returned; abandoning a story and
// starting another is the normal path.
func (s *Server) resolveState(ctx context.Context, userID, clientUUID, category, topic string) (*models.AdventureState, []string, error) {
	state, repairs, err := s.store.FindActive(ctx, userID, clientUUID, category, topic)
	if err == nil {
		return state, repairs, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, nil, err
	}
	return &models.AdventureState{
		ClientUUID:    clientUUID,
		UserID:        userID,
		StoryCategory: category,
		LessonTopic:   topic,
	}, nil, nil
}

func (s *Server) knownTopic(topic string) bool {
	for _, t := range s.questions.Topics() {
		if t == topic {
			return true
		}
	}
	return false
}

// bearerToken pulls the token from the Authorization header, falling
// back to the token query parameter for browser WebSocket clients that
// cannot set headers.
func bearerToken(c *echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.QueryParam("token")
}
