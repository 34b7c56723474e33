package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/luyiourwong/vibe-markdown/internal/agent"
	"github.com/luyiourwong/vibe-markdown/internal/config"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/storage"
	"github.com/luyiourwong/vibe-markdown/internal/tools"
)

// ActiveSession tracks an in-memory agent for a session.
type ActiveSession struct {
	Agent *agent.Agent
	mu    sync.Mutex // one message at a time per session

	cancelMu sync.Mutex
	cancel   context.CancelFunc // cancels the in-flight run
}

// setCancel records the cancel func of the run in flight, or clears it with nil.
func (as *ActiveSession) setCancel(cancel context.CancelFunc) {
	as.cancelMu.Lock()
	defer as.cancelMu.Unlock()
	as.cancel = cancel
}

// Cancel stops the run in flight, if any.
func (as *ActiveSession) Cancel() {
	as.cancelMu.Lock()
	defer as.cancelMu.Unlock()
	if as.cancel != nil {
		as.cancel()
	}
}

// SessionManager tracks which sessions have an active Agent in memory.
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[string]*ActiveSession
	newClient ClientFactory
}

// NewSessionManager creates a new SessionManager. A nil factory uses the
// OpenAI-compatible client.
func NewSessionManager(newClient ClientFactory) *SessionManager {
	if newClient == nil {
		newClient = defaultClientFactory
	}
	return &SessionManager{
		sessions:  make(map[string]*ActiveSession),
		newClient: newClient,
	}
}

// Get returns an active session if it exists.
func (sm *SessionManager) Get(sessionID string) (*ActiveSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	as, ok := sm.sessions[sessionID]
	return as, ok
}

// GetOrCreate returns an existing active session or builds its agent from
// api, the session's profile and stored history.
func (sm *SessionManager) GetOrCreate(
	ctx context.Context,
	sess *storage.Session,
	cfg *config.Config,
	api llm.Settings,
	store storage.Store,
	registry *tools.Registry,
) (*ActiveSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if as, ok := sm.sessions[sess.ID]; ok {
		return as, nil
	}

	profile, err := agent.LoadNamedProfile(cfg.Agent.ProfilesDir, sess.Profile)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	a := agent.New(sm.newClient(api), registry, cfg.Agent.MaxIterations, sess.Lang)
	a.SetMaxTokens(cfg.Agent.ContextMaxTokens)
	a.ApplyProfile(profile)
	if cfg.Agent.UtilityModel != "" {
		utility := api
		utility.Model = cfg.Agent.UtilityModel
		a.SetUtilityLLM(sm.newClient(utility))
	}

	// Load existing history if any
	messages, err := store.LoadMessages(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	if len(messages) > 0 {
		a.SetHistory(messages)
	}

	as := &ActiveSession{
		Agent: a,
	}
	sm.sessions[sess.ID] = as
	return as, nil
}

// Remove removes an active session and cancels any in-flight work.
func (sm *SessionManager) Remove(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if as, ok := sm.sessions[sessionID]; ok {
		as.Cancel()
		delete(sm.sessions, sessionID)
	}
}

// CloseAll cancels all active sessions.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, as := range sm.sessions {
		as.Cancel()
		delete(sm.sessions, id)
	}
}
