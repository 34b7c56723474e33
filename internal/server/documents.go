package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/render"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context(), pagination(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if docs == nil {
		docs = []editor.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// documentRequest carries the editable fields. Nil fields are left unchanged
// on update.
type documentRequest struct {
	Title    *string          `json:"title"`
	Content  *string          `json:"content"`
	ViewMode *editor.ViewMode `json:"viewMode"`
}

func (req documentRequest) apply(d *editor.Document) {
	if req.Content != nil {
		d.Content = *req.Content
	}
	if req.Title != nil {
		d.Title = *req.Title
	}
	if req.ViewMode != nil {
		d.ViewMode = *req.ViewMode
	}
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	us, err := s.effectiveSettings(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	doc := &editor.Document{ID: uuid.New().String(), ViewMode: us.ViewMode}
	req.apply(doc)
	if doc.Title == "" {
		doc.Title = editor.TitleFromContent(doc.Content)
	}

	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	req.apply(doc)

	if err := s.store.UpdateDocument(r.Context(), doc); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRenderDocument returns the document as the given view mode shows it.
// Without ?mode the document's own view mode is used.
func (s *Server) handleRenderDocument(w http.ResponseWriter, r *http.Request) {
	var mode editor.ViewMode
	if m := r.URL.Query().Get("mode"); m != "" {
		parsed, err := editor.ParseViewMode(m)
		if err != nil {
			writeErr(w, err)
			return
		}
		mode = parsed
	}

	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	view, err := render.ForMode(doc, mode)
	if err != nil {
		writeErr(w, fmt.Errorf("rendering %s: %w", doc.ID, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}
