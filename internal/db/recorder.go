package db

import (
	"database/sql"

	"github.com/rs/zerolog"
)

// Recorder receives relay events.
type Recorder interface {
	Record(eventType string, payload map[string]any)
}

// EventLog records events as children of the process.started event.
// Write failures are logged and otherwise ignored.
type EventLog struct {
	db       *sql.DB
	parentID *int64
	logger   zerolog.Logger
}

// NewEventLog returns a Recorder writing to db under parentID (may be nil).
func NewEventLog(db *sql.DB, parentID *int64, logger zerolog.Logger) *EventLog {
	return &EventLog{db: db, parentID: parentID, logger: logger}
}

func (l *EventLog) Record(eventType string, payload map[string]any) {
	if _, err := LogEvent(l.db, l.parentID, eventType, payload); err != nil {
		l.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to record event")
	}
}

// NopRecorder drops every event.
type NopRecorder struct{}

func (NopRecorder) Record(string, map[string]any) {}
