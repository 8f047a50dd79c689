package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/DesmondChoy/odyssey/pkg/models"
)

// maxInFlightEvents caps concurrent async inserts so a telemetry burst
// cannot exhaust the connection pool.
const maxInFlightEvents = 8

// TelemetryService appends analytics events. Recording is best-effort:
// a failed insert is logged and never fails the calling operation.
type TelemetryService struct {
	db          *sql.DB
	environment string
	logger      *slog.Logger
	inflight    *semaphore.Weighted
}

// NewTelemetryService creates a TelemetryService.
func NewTelemetryService(db *sql.DB, environment string, logger *slog.Logger) *TelemetryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelemetryService{
		db:          db,
		environment: environment,
		logger:      logger.With("component", "services.telemetry"),
		inflight:    semaphore.NewWeighted(maxInFlightEvents),
	}
}

// Record inserts one event synchronously.
func (s *TelemetryService) Record(ctx context.Context, event models.TelemetryEvent) error {
	event.Environment = s.environment
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var payload []byte
	if len(event.Payload) > 0 {
		var err error
		payload, err = json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal telemetry payload: %w", err)
		}
	}

	var adventureID any
	if event.AdventureID != uuid.Nil {
		adventureID = event.AdventureID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO telemetry_events
			(event_type, adventure_id, user_id, environment, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.EventType, adventureID, nullUUID(event.UserID),
		s.environment, payload, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record telemetry event: %w", err)
	}
	return nil
}

// RecordAsync inserts one event off the caller's path. Failures are
// logged only; telemetry never blocks or fails gameplay. Events beyond
// the in-flight cap are dropped rather than queued.
func (s *TelemetryService) RecordAsync(event models.TelemetryEvent) {
	if !s.inflight.TryAcquire(1) {
		s.logger.Warn("telemetry event dropped, too many in flight",
			"event_type", event.EventType)
		return
	}
	go func() {
		defer s.inflight.Release(1)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Record(ctx, event); err != nil {
			s.logger.Warn("telemetry event dropped",
				"event_type", event.EventType, "error", err)
		}
	}()
}
