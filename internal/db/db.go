package db

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Event type constants: process events
const (
	EventProcessStarted = "process.started"
	EventProcessStopped = "process.stopped"
	EventPollFailed     = "poll.failed"
	EventCircuitOpened  = "circuit.opened"
	EventCircuitClosed  = "circuit.closed"
)

// Event type constants: relay events
const (
	EventMessageReceived    = "message.received"
	EventContextCleared     = "context.cleared"
	EventInferenceCompleted = "inference.completed"
	EventInferenceFailed    = "inference.failed"
	EventReplySent          = "reply.sent"
	EventHandlerFailed      = "handler.failed"
)

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create db directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db at %s", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to ping db at %s", path)
	}

	return db, nil
}

// InitSchema creates the events table. Transcripts are never written here.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			user_id INTEGER,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);
		CREATE INDEX IF NOT EXISTS idx_events_user_id ON events(user_id, id);
	`)
	return errors.Wrap(err, "init schema")
}

// LogEvent inserts an event into the events table and returns its auto-generated id.
// parentID may be nil for root events. A "user_id" payload entry is also stored
// in its own column. payload is serialized to JSON; nil payload stores NULL.
func LogEvent(db *sql.DB, parentID *int64, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	var userID any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, errors.Wrap(err, "marshal event payload")
		}
		payloadJSON = string(data)
		if v, ok := payload["user_id"].(int64); ok {
			userID = v
		}
	}

	res, err := db.Exec(
		`INSERT INTO events (parent_id, event_type, user_id, payload) VALUES (?, ?, ?, ?)`,
		parentID, eventType, userID, payloadJSON,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "insert event %s", eventType)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "get event id")
	}
	return id, nil
}

// Event is a row from the events table.
type Event struct {
	ID        int64
	Timestamp int64
	ParentID  sql.NullInt64
	EventType string
	UserID    sql.NullInt64
	Payload   sql.NullString
}

// RecentEvents returns up to limit events, newest first. userID 0 means all users.
func RecentEvents(db *sql.DB, userID int64, limit int) ([]Event, error) {
	query := `SELECT id, timestamp, parent_id, event_type, user_id, payload FROM events`
	args := []any{}
	if userID != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ParentID, &e.EventType, &e.UserID, &e.Payload); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "iterate events")
}
