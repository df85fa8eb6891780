package messages

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, no cgo

	"github.com/cocommand/cocommand/pkg/models"
)

// SQLiteStore is the durable Message Store backend, grounded on the
// teacher's sqlitevec.Backend (same database/sql + modernc.org/sqlite
// construction, same init-schema-on-open pattern).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a sqlite-backed store at
// path. Pass ":memory:" for an ephemeral store with the same contract as
// MemoryStore but exercised through the SQL path, useful for tests of the
// schema itself.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS message_info (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_message_info_session ON message_info(session_id, id);

		CREATE TABLE IF NOT EXISTS message_part (
			id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (message_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_message_part_message ON message_part(message_id, id);
	`)
	if err != nil {
		return fmt.Errorf("init message store schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) StoreInfo(ctx context.Context, info models.MessageInfo) error {
	var completedAt any
	if info.CompletedAt != nil {
		completedAt = info.CompletedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_info (id, session_id, role, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			role = excluded.role,
			created_at = excluded.created_at,
			completed_at = excluded.completed_at
	`, info.ID, info.SessionID, string(info.Role), info.CreatedAt.UTC(), completedAt)
	return err
}

func (s *SQLiteStore) StorePart(ctx context.Context, part models.MessagePart) error {
	payload, err := json.Marshal(part)
	if err != nil {
		return fmt.Errorf("marshal message part: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO message_part (id, message_id, session_id, type, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, id) DO UPDATE SET
			type = excluded.type,
			created_at = excluded.created_at,
			payload = excluded.payload
	`, part.ID, part.MessageID, part.SessionID, string(part.Type), part.CreatedAt.UTC(), string(payload))
	return err
}

func (s *SQLiteStore) List(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, created_at, completed_at FROM message_info
		WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var info models.MessageInfo
		var role string
		var completedAt sql.NullTime
		if err := rows.Scan(&info.ID, &role, &info.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		info.SessionID = sessionID
		info.Role = models.Role(role)
		if completedAt.Valid {
			t := completedAt.Time
			info.CompletedAt = &t
		}
		parts, err := s.listParts(ctx, info.ID)
		if err != nil {
			return nil, err
		}
		messages = append(messages, models.Message{Info: info, Parts: parts})
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID, messageID string) (models.Message, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT role, created_at, completed_at FROM message_info
		WHERE id = ? AND session_id = ?
	`, messageID, sessionID)
	var role string
	var createdAt time.Time
	var completedAt sql.NullTime
	if err := row.Scan(&role, &createdAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return models.Message{}, false, nil
		}
		return models.Message{}, false, err
	}
	info := models.MessageInfo{ID: messageID, SessionID: sessionID, Role: models.Role(role), CreatedAt: createdAt}
	if completedAt.Valid {
		t := completedAt.Time
		info.CompletedAt = &t
	}
	parts, err := s.listParts(ctx, messageID)
	if err != nil {
		return models.Message{}, false, err
	}
	return models.Message{Info: info, Parts: parts}, true, nil
}

func (s *SQLiteStore) listParts(ctx context.Context, messageID string) ([]models.MessagePart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM message_part WHERE message_id = ? ORDER BY id ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []models.MessagePart
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var part models.MessagePart
		if err := json.Unmarshal([]byte(payload), &part); err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, rows.Err()
}
