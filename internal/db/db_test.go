package db

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(t.TempDir() + "/nested/test.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitSchema(t *testing.T) {
	db := testDB(t)

	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='events'`).Scan(&name)
	if err != nil {
		t.Fatalf("events table not created: %v", err)
	}

	// Idempotent.
	if err := InitSchema(db); err != nil {
		t.Fatal(err)
	}
}

func TestLogEvent_Basic(t *testing.T) {
	db := testDB(t)

	id1, err := LogEvent(db, nil, EventProcessStarted, map[string]any{"pid": 123})
	if err != nil {
		t.Fatal(err)
	}
	if id1 <= 0 {
		t.Errorf("expected positive id, got %d", id1)
	}

	id2, err := LogEvent(db, &id1, EventMessageReceived, map[string]any{"user_id": int64(456)})
	if err != nil {
		t.Fatal(err)
	}
	if id2 <= id1 {
		t.Errorf("expected id2 > id1, got %d <= %d", id2, id1)
	}

	var ts int64
	if err := db.QueryRow(`SELECT timestamp FROM events WHERE id = ?`, id1).Scan(&ts); err != nil {
		t.Fatal(err)
	}
	if ts == 0 {
		t.Error("expected non-zero timestamp")
	}

	var payloadStr string
	if err := db.QueryRow(`SELECT payload FROM events WHERE id = ?`, id2).Scan(&payloadStr); err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(payloadStr), &m); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if m["user_id"] != float64(456) {
		t.Errorf("unexpected payload: %v", m)
	}
}

func TestLogEvent_NilPayload(t *testing.T) {
	db := testDB(t)

	id, err := LogEvent(db, nil, EventProcessStopped, nil)
	require.NoError(t, err)

	var payload sql.NullString
	require.NoError(t, db.QueryRow(`SELECT payload FROM events WHERE id = ?`, id).Scan(&payload))
	assert.False(t, payload.Valid)
}

func TestRecentEvents_FiltersByUser(t *testing.T) {
	db := testDB(t)

	root, err := LogEvent(db, nil, EventProcessStarted, nil)
	require.NoError(t, err)
	for _, uid := range []int64{1, 2, 1} {
		_, err := LogEvent(db, &root, EventMessageReceived, map[string]any{"user_id": uid})
		require.NoError(t, err)
	}

	all, err := RecentEvents(db, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, EventProcessStarted, all[len(all)-1].EventType)

	ones, err := RecentEvents(db, 1, 10)
	require.NoError(t, err)
	require.Len(t, ones, 2)
	for _, e := range ones {
		assert.EqualValues(t, 1, e.UserID.Int64)
		assert.EqualValues(t, root, e.ParentID.Int64)
	}
	assert.Greater(t, ones[0].ID, ones[1].ID)

	limited, err := RecentEvents(db, 0, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestEventLog_Record(t *testing.T) {
	db := testDB(t)
	root, err := LogEvent(db, nil, EventProcessStarted, nil)
	require.NoError(t, err)

	var rec Recorder = NewEventLog(db, &root, zerolog.Nop())
	rec.Record(EventReplySent, map[string]any{"user_id": int64(9)})

	events, err := RecentEvents(db, 9, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventReplySent, events[0].EventType)
}

func TestEventLog_RecordAfterCloseDoesNotPanic(t *testing.T) {
	db := testDB(t)
	rec := NewEventLog(db, nil, zerolog.Nop())
	db.Close()

	rec.Record(EventReplySent, nil)
}
