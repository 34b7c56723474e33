package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luyiourwong/vibe-markdown/internal/agent"
	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/storage"
)

// errBadRequest marks malformed input detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps err to a status code by its sentinel.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, storage.ErrAmbiguous),
		errors.Is(err, llm.ErrInvalidRole),
		errors.Is(err, llm.ErrUnmatchedToolResult),
		errors.Is(err, llm.ErrInvalidSettings),
		errors.Is(err, i18n.ErrInvalidLang),
		errors.Is(err, editor.ErrInvalidViewMode),
		errors.Is(err, editor.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, llm.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body. Decoding failures, including enum
// values outside their sets, are reported as bad requests.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if statusFor(err) == http.StatusBadRequest {
			return err
		}
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

func pagination(r *http.Request) storage.ListOptions {
	var opts storage.ListOptions
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}
	return opts
}

// --- Session handlers ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	page := pagination(r)
	opts := storage.SessionListOptions{
		Status:     storage.SessionStatus(r.URL.Query().Get("status")),
		DocumentID: r.URL.Query().Get("document"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}

	sessions, err := s.store.ListSessions(r.Context(), opts)
	if err != nil {
		writeErr(w, err)
		return
	}

	if sessions == nil {
		sessions = []storage.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

type createSessionRequest struct {
	DocumentID string    `json:"documentId"`
	Model      string    `json:"model"`
	Profile    string    `json:"profile"`
	Title      string    `json:"title"`
	Lang       i18n.Lang `json:"lang"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	us, err := s.effectiveSettings(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}

	if req.DocumentID != "" {
		doc, err := s.store.GetDocument(r.Context(), req.DocumentID)
		if err != nil {
			writeErr(w, err)
			return
		}
		req.DocumentID = doc.ID
	}

	profile, err := agent.LoadNamedProfile(s.cfg.Agent.ProfilesDir, req.Profile)
	if err != nil {
		writeErr(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	model := req.Model
	if model == "" && profile != nil {
		model = profile.Model
	}
	if model == "" {
		model = us.Model
	}
	lang := req.Lang
	if lang == "" {
		lang = us.Lang
	}

	sess := &storage.Session{
		ID:         uuid.New().String(),
		DocumentID: req.DocumentID,
		Title:      req.Title,
		Status:     storage.StatusActive,
		Model:      model,
		Profile:    req.Profile,
		Lang:       lang,
	}

	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	// Delete the row before cancelling an in-flight turn so the turn sees
	// the session gone when it saves.
	if err := s.store.DeleteSession(r.Context(), sess.ID); err != nil {
		writeErr(w, err)
		return
	}
	s.sessions.Remove(sess.ID)

	w.WriteHeader(http.StatusNoContent)
}

// --- Message handlers ---

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	messages, err := s.store.LoadMessages(r.Context(), sess.ID)
	if err != nil {
		writeErr(w, err)
		return
	}

	if messages == nil {
		messages = []llm.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type sendMessageResponse struct {
	Content    string                  `json:"content"`
	Highlights []editor.HighlightRange `json:"highlights"`
	Document   *editor.Document        `json:"document,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	as, err := s.activeSession(r.Context(), sess)
	if err != nil {
		writeErr(w, err)
		return
	}

	// Lock to ensure one message at a time
	as.mu.Lock()
	defer as.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	as.setCancel(cancel)
	defer as.setCancel(nil)

	turn, err := s.runTurn(ctx, as, sess, req.Content, false)
	cancel()
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		Content:    turn.content,
		Highlights: turn.highlights,
		Document:   turn.document,
	})
}

// turnResult is the outcome of one user message.
type turnResult struct {
	content    string
	highlights []editor.HighlightRange
	document   *editor.Document
}

// runTurn runs the assistant on content with the session's document loaded
// fresh from storage, then persists the history and any document edits.
// The caller holds as.mu.
func (s *Server) runTurn(ctx context.Context, as *ActiveSession, sess *storage.Session, content string, stream bool) (*turnResult, error) {
	if sess.Title == "" {
		sess.Title = editor.TitleFromContent(content)
		if err := s.store.UpdateSession(ctx, sess); err != nil {
			log.Printf("updating title for session %s: %v", sess.ID, err)
		}
	}

	var doc *editor.Document
	var buf *editor.Buffer
	if sess.DocumentID != "" {
		d, err := s.store.GetDocument(ctx, sess.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("loading document: %w", err)
		}
		doc = d
		buf = editor.NewBuffer(doc.Content)
	}
	as.Agent.SetDocument(buf)

	var response string
	var runErr error
	if stream {
		response, runErr = as.Agent.RunStreaming(ctx, content)
	} else {
		response, runErr = as.Agent.Run(ctx, content)
	}

	// Save messages and edits regardless of error
	bg := context.WithoutCancel(ctx)
	if err := s.store.SaveMessages(bg, sess.ID, as.Agent.History()); err != nil {
		if _, gerr := s.store.GetSession(bg, sess.ID); errors.Is(gerr, storage.ErrNotFound) {
			return nil, fmt.Errorf("session %s was deleted during the turn: %w", sess.ID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("saving messages: %w", err)
	}

	result := &turnResult{content: response, highlights: []editor.HighlightRange{}}
	if buf != nil && buf.Text() != doc.Content {
		doc.Content = buf.Text()
		if err := s.store.UpdateDocument(bg, doc); err != nil {
			return nil, fmt.Errorf("saving document: %w", err)
		}
		result.highlights = buf.Highlights()
		result.document = doc
	}

	if runErr != nil {
		return result, fmt.Errorf("agent error: %w", runErr)
	}
	return result, nil
}
