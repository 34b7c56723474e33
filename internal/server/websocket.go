package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the SPA may be served from the Vite dev server
	},
}

// Event types sent to the client.
const (
	eventTextDelta  = "text_delta"
	eventToolCall   = "tool_call"
	eventToolResult = "tool_result"
	eventHighlight  = "highlight"
	eventDocument   = "document"
	eventDone       = "done"
	eventError      = "error"
)

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type     string                 `json:"type"`
	Content  string                 `json:"content,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Args     any                    `json:"args,omitempty"`
	Range    *editor.HighlightRange `json:"range,omitempty"`
	Document *editor.Document       `json:"document,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	as, err := s.activeSession(r.Context(), sess)
	if err != nil {
		wsWriteJSON(conn, wsOutgoing{Type: eventError, Content: "initializing agent: " + err.Error()})
		return
	}

	// Read loop
	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			log.Printf("websocket read error: %v", err)
			return
		}

		if msg.Type != "message" || msg.Content == "" {
			wsWriteJSON(conn, wsOutgoing{Type: eventError, Content: "invalid message"})
			continue
		}

		s.processWebSocketMessage(conn, as, sess, msg.Content)
	}
}

func (s *Server) processWebSocketMessage(conn *websocket.Conn, as *ActiveSession, sess *storage.Session, content string) {
	// Ensure one message at a time
	as.mu.Lock()
	defer as.mu.Unlock()

	// Callbacks and the final write share the connection.
	var wsMu sync.Mutex
	send := func(v wsOutgoing) {
		wsMu.Lock()
		defer wsMu.Unlock()
		wsWriteJSON(conn, v)
	}

	ctx, cancel := context.WithCancel(context.Background())
	as.setCancel(cancel)
	defer func() {
		cancel()
		as.setCancel(nil)
		as.Agent.OnTextDelta = nil
		as.Agent.OnToolCall = nil
		as.Agent.OnToolResult = nil
		as.Agent.OnHighlight = nil
	}()

	as.Agent.OnTextDelta = func(delta string) {
		send(wsOutgoing{Type: eventTextDelta, Content: delta})
	}
	as.Agent.OnToolCall = func(name string, args map[string]any) {
		send(wsOutgoing{Type: eventToolCall, Name: name, Args: args})
	}
	as.Agent.OnToolResult = func(name string, result string) {
		send(wsOutgoing{Type: eventToolResult, Name: name, Content: result})
	}
	as.Agent.OnHighlight = func(r editor.HighlightRange) {
		send(wsOutgoing{Type: eventHighlight, Range: &r})
	}

	turn, err := s.runTurn(ctx, as, sess, content, true)
	if turn != nil && turn.document != nil {
		send(wsOutgoing{Type: eventDocument, Document: turn.document})
	}
	if err != nil {
		if ctx.Err() != nil {
			send(wsOutgoing{Type: eventError, Content: "interrupted"})
		} else {
			send(wsOutgoing{Type: eventError, Content: err.Error()})
		}
		return
	}

	send(wsOutgoing{Type: eventDone, Content: turn.content})
}

func wsWriteJSON(conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}
