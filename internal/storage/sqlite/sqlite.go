package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/storage"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed-width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ storage.Store = (*SQLiteStore)(nil)

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" a single database and the foreign_keys pragma in effect.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func now() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

// --- Documents ---

const documentColumns = `id, title, content, view_mode, created_at, updated_at`

func (s *SQLiteStore) CreateDocument(ctx context.Context, d *editor.Document) error {
	if d.ViewMode == "" {
		d.ViewMode = editor.ViewSplit
	}
	d.CreatedAt = now()
	d.UpdatedAt = d.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, view_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Content, d.ViewMode, formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*editor.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("document: empty id: %w", storage.ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE substr(id, 1, length(?)) = ? ORDER BY id = ? DESC LIMIT 3`,
		id, id, id)
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	defer rows.Close()

	var matches []*editor.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		if d.ID == id {
			return d, nil
		}
		matches = append(matches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("document %q: %w", id, storage.ErrAmbiguous)
	}
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, opts storage.ListOptions) ([]editor.Document, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, '', view_mode, created_at, updated_at
		FROM documents ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []editor.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, d *editor.Document) error {
	d.UpdatedAt = now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET title = ?, content = ?, view_mode = ?, updated_at = ? WHERE id = ?`,
		d.Title, d.Content, d.ViewMode, formatTime(d.UpdatedAt), d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	return requireRow(res, "document", d.ID)
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	d, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Same effect as ON DELETE SET NULL, without depending on the foreign_keys pragma.
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET document_id = NULL WHERE document_id = ?`, d.ID); err != nil {
		return fmt.Errorf("detaching sessions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, d.ID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if err := requireRow(res, "document", d.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Sessions ---

const sessionColumns = `id, document_id, title, status, model, profile, lang, created_at, updated_at`

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *storage.Session) error {
	if sess.Status == "" {
		sess.Status = storage.StatusActive
	}
	if sess.Lang == "" {
		sess.Lang = i18n.Default
	}
	sess.CreatedAt = now()
	sess.UpdatedAt = sess.CreatedAt

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, nullString(sess.DocumentID), sess.Title, sess.Status, sess.Model, sess.Profile, sess.Lang,
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	// Initialize empty messages row
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_messages (session_id, messages, updated_at) VALUES (?, '[]', ?)`,
		sess.ID, formatTime(sess.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session messages: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session: empty id: %w", storage.ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE substr(id, 1, length(?)) = ? ORDER BY id = ? DESC LIMIT 3`,
		id, id, id)
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	defer rows.Close()

	var matches []*storage.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		if sess.ID == id {
			return sess, nil
		}
		matches = append(matches, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("session %q: %w", id, storage.ErrAmbiguous)
	}
}

func (s *SQLiteStore) ListSessions(ctx context.Context, opts storage.SessionListOptions) ([]storage.Session, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1 = 1`
	var args []any

	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	if opts.DocumentID != "" {
		query += ` AND document_id = ?`
		args = append(args, opts.DocumentID)
	}

	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []storage.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *storage.Session) error {
	sess.UpdatedAt = now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET title = ?, status = ?, model = ?, updated_at = ? WHERE id = ?`,
		sess.Title, sess.Status, sess.Model, formatTime(sess.UpdatedAt), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return requireRow(res, "session", sess.ID)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	// Resolve prefix first
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	// Delete messages first (foreign key), then session
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sess.ID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// --- Messages ---

func (s *SQLiteStore) SaveMessages(ctx context.Context, sessionID string, messages []llm.Message) error {
	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	if messages == nil {
		messages = []llm.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	ts := formatTime(now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_messages (session_id, messages, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		sessionID, string(data), ts,
	)
	if err != nil {
		return fmt.Errorf("saving messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, ts, sessionID)
	return err
}

func (s *SQLiteStore) LoadMessages(ctx context.Context, sessionID string) ([]llm.Message, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT messages FROM session_messages WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	var messages []llm.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return messages, nil
}

// --- Settings ---

func (s *SQLiteStore) GetSettings(ctx context.Context) (*storage.UserSettings, error) {
	var us storage.UserSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT api_url, api_key, model, lang, view_mode FROM settings WHERE id = 1`).
		Scan(&us.APIURL, &us.APIKey, &us.Model, &us.Lang, &us.ViewMode)
	if errors.Is(err, sql.ErrNoRows) {
		return &storage.UserSettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return &us, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, us *storage.UserSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, api_url, api_key, model, lang, view_mode) VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET api_url = excluded.api_url, api_key = excluded.api_key,
			model = excluded.model, lang = excluded.lang, view_mode = excluded.view_mode`,
		us.APIURL, us.APIKey, us.Model, us.Lang, us.ViewMode,
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Scanner interface to work with both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*editor.Document, error) {
	var d editor.Document
	var createdAt, updatedAt string
	if err := s.Scan(&d.ID, &d.Title, &d.Content, &d.ViewMode, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func scanSession(s scanner) (*storage.Session, error) {
	var sess storage.Session
	var documentID sql.NullString
	var createdAt, updatedAt string
	err := s.Scan(&sess.ID, &documentID, &sess.Title, &sess.Status,
		&sess.Model, &sess.Profile, &sess.Lang, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.DocumentID = documentID.String
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}
