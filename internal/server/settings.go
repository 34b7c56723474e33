package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/storage"
)

// effectiveSettings returns the stored settings with empty fields filled
// from configuration.
func (s *Server) effectiveSettings(ctx context.Context) (*storage.UserSettings, error) {
	stored, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	us := *stored
	us.Settings = stored.Settings.Merge(s.cfg.API)
	if us.Lang == "" {
		us.Lang = s.cfg.UI.Lang
	}
	if us.ViewMode == "" {
		us.ViewMode = s.cfg.UI.ViewMode
	}
	return &us, nil
}

// activeSession returns the session's agent, building it from the effective
// settings with the session's model.
func (s *Server) activeSession(ctx context.Context, sess *storage.Session) (*ActiveSession, error) {
	if as, ok := s.sessions.Get(sess.ID); ok {
		return as, nil
	}
	us, err := s.effectiveSettings(ctx)
	if err != nil {
		return nil, err
	}
	api := us.Settings
	if sess.Model != "" {
		api.Model = sess.Model
	}
	if err := api.Validate(); err != nil {
		return nil, err
	}
	return s.sessions.GetOrCreate(ctx, sess, s.cfg, api, s.store, s.registry)
}

type configResponse struct {
	APIURL    string            `json:"apiUrl"`
	Model     string            `json:"model"`
	Lang      i18n.Lang         `json:"lang"`
	ViewMode  editor.ViewMode   `json:"viewMode"`
	RootPath  string            `json:"rootPath"`
	Langs     []i18n.Lang       `json:"langs"`
	ViewModes []editor.ViewMode `json:"viewModes"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	lang := s.cfg.UI.Lang
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		lang = i18n.Match(accept)
	}
	writeJSON(w, http.StatusOK, configResponse{
		APIURL:    s.cfg.API.APIURL,
		Model:     s.cfg.API.Model,
		Lang:      lang,
		ViewMode:  s.cfg.UI.ViewMode,
		RootPath:  s.cfg.Server.RootPath,
		Langs:     i18n.Langs,
		ViewModes: editor.ViewModes,
	})
}

// settingsBody is the wire form of storage.UserSettings.
type settingsBody struct {
	llm.Settings
	Lang     i18n.Lang       `json:"lang"`
	ViewMode editor.ViewMode `json:"viewMode"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	us, err := s.effectiveSettings(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsBody{
		Settings: us.Settings.Masked(),
		Lang:     us.Lang,
		ViewMode: us.ViewMode,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}

	stored, err := s.store.GetSettings(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	// A masked key echoed back from GET keeps the stored one.
	if llm.IsMasked(body.APIKey) {
		body.APIKey = stored.APIKey
	}
	if err := body.Settings.Merge(s.cfg.API).Validate(); err != nil {
		writeErr(w, err)
		return
	}

	us := &storage.UserSettings{Settings: body.Settings, Lang: body.Lang, ViewMode: body.ViewMode}
	if err := s.store.SaveSettings(r.Context(), us); err != nil {
		writeErr(w, err)
		return
	}
	// Agents hold clients built from the old settings.
	s.sessions.CloseAll()

	s.handleGetSettings(w, r)
}

type chatCompletionRequest struct {
	Settings *llm.Settings `json:"settings"`
	Messages []llm.Message `json:"messages"`
	Tools    []llm.ToolDef `json:"tools"`
	Stream   bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Message llm.Message `json:"message"`
}

// streamEvent is one server-sent event of a streamed completion.
type streamEvent struct {
	Type    string       `json:"type"` // delta, message or error
	Content string       `json:"content,omitempty"`
	Message *llm.Message `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// handleChatCompletions forwards a conversation to the endpoint without
// touching stored sessions.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.Messages) == 0 {
		writeErr(w, fmt.Errorf("%w: messages is required", errBadRequest))
		return
	}
	if err := llm.CheckToolResults(req.Messages); err != nil {
		writeErr(w, err)
		return
	}

	api, err := s.requestSettings(r.Context(), req.Settings)
	if err != nil {
		writeErr(w, err)
		return
	}

	if req.Stream {
		s.streamChatCompletion(w, r, api, req)
		return
	}

	resp, err := s.newClient(api).ChatCompletion(r.Context(), req.Messages, req.Tools)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatCompletionResponse{Message: resp.Message})
}

// streamChatCompletion relays text deltas as server-sent events, then the
// complete message. Headers go out with the first event, so a failure before
// any output still gets a plain JSON error and status code.
func (s *Server) streamChatCompletion(w http.ResponseWriter, r *http.Request, api llm.Settings, req chatCompletionRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	started := false
	send := func(ev streamEvent) {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	resp, err := s.newClient(api).ChatCompletionStream(r.Context(), req.Messages, req.Tools, func(delta string) {
		send(streamEvent{Type: "delta", Content: delta})
	})
	if err != nil {
		if !started {
			writeErr(w, err)
			return
		}
		log.Printf("streaming completion: %v", err)
		send(streamEvent{Type: "error", Error: err.Error()})
		return
	}

	send(streamEvent{Type: "message", Message: &resp.Message})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// requestSettings merges per-request settings over the effective ones and
// validates the result.
func (s *Server) requestSettings(ctx context.Context, override *llm.Settings) (llm.Settings, error) {
	us, err := s.effectiveSettings(ctx)
	if err != nil {
		return llm.Settings{}, err
	}
	api := us.Settings
	if override != nil {
		api = override.Merge(api)
	}
	if err := api.Validate(); err != nil {
		return llm.Settings{}, err
	}
	return api, nil
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	api, err := s.requestSettings(r.Context(), nil)
	if err != nil {
		writeErr(w, err)
		return
	}

	models, err := s.newClient(api).ListModels(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if models == nil {
		models = []llm.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, models)
}
