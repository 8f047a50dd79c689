// Package services holds the persistence layer between the session engine
// and PostgreSQL: the adventure store and the telemetry recorder.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DesmondChoy/odyssey/pkg/models"
)

// AdventureStore persists adventure state as a single JSONB document per
// adventure, with indexed columns for resume lookups. Writes use
// optimistic concurrency on updated_at so a second writer for the same
// adventure is detected instead of silently overwritten.
type AdventureStore struct {
	db          *sql.DB
	environment string
	logger      *slog.Logger
}

// NewAdventureStore creates an AdventureStore.
func NewAdventureStore(db *sql.DB, environment string, logger *slog.Logger) *AdventureStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdventureStore{
		db:          db,
		environment: environment,
		logger:      logger.With("component", "services.adventure"),
	}
}

const persistTimeout = 10 * time.Second

// Upsert writes the full state atomically. A fresh state (zero
// AdventureID) is assigned an ID and inserted; an existing state is
// updated only when its updated_at still matches the loaded token,
// otherwise ErrStateConflict is returned and the caller reloads.
// On success the state's UpdatedAt carries the new token.
func (s *AdventureStore) Upsert(ctx context.Context, state *models.AdventureState) error {
	if state.StoryCategory == "" || state.LessonTopic == "" {
		return fmt.Errorf("%w: story category and lesson topic are required", ErrInvalidInput)
	}

	// Critical write: survive the caller's disconnect.
	wctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)

	if state.AdventureID == uuid.Nil {
		state.AdventureID = uuid.New()
		state.CreatedAt = now
		state.UpdatedAt = now
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal adventure state: %w", err)
		}
		_, err = s.db.ExecContext(wctx, `
			INSERT INTO adventures
				(id, user_id, client_uuid, story_category, lesson_topic,
				 state_data, is_complete, completed_chapter_count, environment,
				 created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
			state.AdventureID, nullUUID(state.UserID), nullString(state.ClientUUID),
			state.StoryCategory, state.LessonTopic, data,
			state.IsComplete, state.CompletedChapterCount(), s.environment, now)
		if err != nil {
			state.AdventureID = uuid.Nil
			return fmt.Errorf("failed to insert adventure: %w", err)
		}
		return nil
	}

	token := state.UpdatedAt
	state.UpdatedAt = now
	data, err := json.Marshal(state)
	if err != nil {
		state.UpdatedAt = token
		return fmt.Errorf("failed to marshal adventure state: %w", err)
	}

	res, err := s.db.ExecContext(wctx, `
		UPDATE adventures
		SET state_data = $2, is_complete = $3, completed_chapter_count = $4,
		    updated_at = $5
		WHERE id = $1 AND updated_at = $6`,
		state.AdventureID, data, state.IsComplete, state.CompletedChapterCount(),
		now, token)
	if err != nil {
		state.UpdatedAt = token
		return fmt.Errorf("failed to update adventure: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		state.UpdatedAt = token
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		state.UpdatedAt = token
		var exists bool
		if err := s.db.QueryRowContext(wctx,
			`SELECT EXISTS(SELECT 1 FROM adventures WHERE id = $1)`,
			state.AdventureID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check adventure existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStateConflict
	}
	return nil
}

// Get loads one adventure by ID. Structural problems in the stored
// document are repaired in memory; the applied repairs are returned for
// the caller to report.
func (s *AdventureStore) Get(ctx context.Context, id uuid.UUID) (*models.AdventureState, []string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT state_data, created_at, updated_at
		FROM adventures WHERE id = $1`, id)
	return s.scanState(row)
}

// FindActive returns the most recently updated incomplete adventure for
// the identity and selection inputs, or ErrNotFound. An authenticated
// user matches on user_id; anonymous sessions match on client_uuid.
func (s *AdventureStore) FindActive(ctx context.Context, userID, clientUUID, category, topic string) (*models.AdventureState, []string, error) {
	var row *sql.Row
	switch {
	case userID != "":
		row = s.db.QueryRowContext(ctx, `
			SELECT state_data, created_at, updated_at
			FROM adventures
			WHERE user_id = $1 AND story_category = $2 AND lesson_topic = $3
			  AND is_complete = FALSE
			ORDER BY updated_at DESC
			LIMIT 1`, userID, category, topic)
	case clientUUID != "":
		row = s.db.QueryRowContext(ctx, `
			SELECT state_data, created_at, updated_at
			FROM adventures
			WHERE client_uuid = $1 AND story_category = $2 AND lesson_topic = $3
			  AND is_complete = FALSE
			ORDER BY updated_at DESC
			LIMIT 1`, clientUUID, category, topic)
	default:
		return nil, nil, ErrNotFound
	}
	return s.scanState(row)
}

func (s *AdventureStore) scanState(row *sql.Row) (*models.AdventureState, []string, error) {
	var (
		data      []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&data, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to load adventure: %w", err)
	}

	var state models.AdventureState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil, fmt.Errorf("failed to decode adventure state: %w", err)
	}
	// Column timestamps are authoritative; the JSON copy may predate them.
	state.CreatedAt = createdAt
	state.UpdatedAt = updatedAt

	repairs := state.Repair()
	if err := state.Validate(); err != nil {
		return nil, repairs, fmt.Errorf("stored adventure state unusable: %w", err)
	}
	if len(repairs) > 0 {
		s.logger.Warn("repaired adventure state on load",
			"adventure_id", state.AdventureID, "repairs", repairs)
	}
	return &state, repairs, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullUUID(s string) any {
	if s == "" {
		return nil
	}
	if id, err := uuid.Parse(s); err == nil {
		return id
	}
	return nil
}
