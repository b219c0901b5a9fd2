package roomstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE index on (room_id, payload_hash) for idempotent appends
const currentSchemaVersion = 1

// SQLite is a durable Store backed by a local SQLite database.
// Uses WAL mode for concurrent read access during writes.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite-backed room store at the given path.
// Applies required pragmas and migrations automatically. Idempotent.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection avoids
	// SQLITE_BUSY storms.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendTimelineEvent appends an event to the room's timeline. Appends are
// idempotent on (room, payload): retrying an identical payload returns the
// existing event id instead of duplicating the entry.
func (s *SQLite) AppendTimelineEvent(ctx context.Context, roomID, eventType string, payload json.RawMessage) (string, error) {
	if !json.Valid(payload) {
		return "", fmt.Errorf("append timeline event: payload is not valid JSON")
	}

	hash := payloadHash(roomID, payload)
	eventID := "$" + uuid.Must(uuid.NewV7()).String()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO timeline_events
		(event_id, room_id, event_type, payload, payload_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, payload_hash) DO NOTHING
	`,
		eventID,
		roomID,
		eventType,
		string(payload),
		hash,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return "", &TransportError{Op: "append_timeline_event", RoomID: roomID, Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("append timeline event: rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return eventID, nil
	}

	// Conflict: the identical payload was already appended. Return the
	// existing id so retries are invisible to callers.
	var existing string
	err = s.db.QueryRowContext(ctx, `
		SELECT event_id FROM timeline_events
		WHERE room_id = ? AND payload_hash = ?
	`, roomID, hash).Scan(&existing)
	if err != nil {
		return "", fmt.Errorf("append timeline event: select existing: %w", err)
	}
	return existing, nil
}

// WriteState upserts the keyed snapshot for a room.
func (s *SQLite) WriteState(ctx context.Context, roomID, eventType, stateKey string, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("write state: payload is not valid JSON")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_state (room_id, event_type, state_key, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(room_id, event_type, state_key)
		DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`,
		roomID,
		eventType,
		stateKey,
		string(payload),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return &TransportError{Op: "write_state", RoomID: roomID, Err: err}
	}
	return nil
}

// ReadState returns the current snapshot, or (nil, nil) when absent.
func (s *SQLite) ReadState(ctx context.Context, roomID, eventType, stateKey string) (json.RawMessage, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM room_state
		WHERE room_id = ? AND event_type = ? AND state_key = ?
	`, roomID, eventType, stateKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &TransportError{Op: "read_state", RoomID: roomID, Err: err}
	}
	return json.RawMessage(payload), nil
}

// ReadTimeline returns the room's events of one type ordered by the seq the
// store assigned at append time.
func (s *SQLite) ReadTimeline(ctx context.Context, roomID, eventType string) ([]TimelineEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, event_id, room_id, event_type, payload
		FROM timeline_events
		WHERE room_id = ? AND event_type = ?
		ORDER BY seq ASC
	`, roomID, eventType)
	if err != nil {
		return nil, &TransportError{Op: "read_timeline", RoomID: roomID, Err: err}
	}
	defer rows.Close()

	events := []TimelineEvent{}
	for rows.Next() {
		var ev TimelineEvent
		var payload string
		if err := rows.Scan(&ev.Seq, &ev.EventID, &ev.RoomID, &ev.Type, &payload); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return events, nil
}

// payloadHash computes the idempotency key for a timeline append.
func payloadHash(roomID string, payload json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(roomID))
	h.Write([]byte{0x00})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
