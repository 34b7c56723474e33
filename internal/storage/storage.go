package storage

import (
	"context"
	"errors"
	"time"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
)

// ErrNotFound is returned when a document or session does not exist.
var ErrNotFound = errors.New("not found")

// ErrAmbiguous is returned when an ID prefix matches more than one record.
var ErrAmbiguous = errors.New("ambiguous id prefix")

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// Session is the metadata for a saved conversation about a document.
type Session struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"documentId,omitempty"`
	Title      string        `json:"title"`
	Status     SessionStatus `json:"status"`
	Model      string        `json:"model"`
	Profile    string        `json:"profile"`
	Lang       i18n.Lang     `json:"lang"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// SessionListOptions controls filtering and pagination for ListSessions.
type SessionListOptions struct {
	Status     SessionStatus
	DocumentID string
	Limit      int
	Offset     int
}

// ListOptions controls pagination for ListDocuments.
type ListOptions struct {
	Limit  int
	Offset int
}

// UserSettings is the persisted per-install configuration edited in the UI.
type UserSettings struct {
	llm.Settings
	Lang     i18n.Lang       `json:"lang"`
	ViewMode editor.ViewMode `json:"viewMode"`
}

// Store is the persistence interface for documents, sessions, messages and settings.
type Store interface {
	// CreateDocument inserts a new document. The ID field must be set by the caller.
	CreateDocument(ctx context.Context, d *editor.Document) error

	// GetDocument returns a document by ID or unique ID prefix.
	GetDocument(ctx context.Context, id string) (*editor.Document, error)

	// ListDocuments returns documents ordered by updated_at descending, without content.
	ListDocuments(ctx context.Context, opts ListOptions) ([]editor.Document, error)

	// UpdateDocument updates title, content, view mode and updated_at.
	UpdateDocument(ctx context.Context, d *editor.Document) error

	// DeleteDocument removes a document. Its sessions are kept but detached.
	DeleteDocument(ctx context.Context, id string) error

	// CreateSession inserts a new session. The ID field must be set by the caller.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns a session by ID or unique ID prefix.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns sessions ordered by updated_at descending.
	ListSessions(ctx context.Context, opts SessionListOptions) ([]Session, error)

	// UpdateSession updates mutable fields (title, status, model, updated_at).
	UpdateSession(ctx context.Context, s *Session) error

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, id string) error

	// SaveMessages overwrites the full message history for a session.
	SaveMessages(ctx context.Context, sessionID string, messages []llm.Message) error

	// LoadMessages returns the message history for a session.
	LoadMessages(ctx context.Context, sessionID string) ([]llm.Message, error)

	// GetSettings returns the saved settings, or zero values if none were saved.
	GetSettings(ctx context.Context) (*UserSettings, error)

	// SaveSettings replaces the saved settings.
	SaveSettings(ctx context.Context, s *UserSettings) error

	// Close releases resources.
	Close() error
}
