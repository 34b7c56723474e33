package tools

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/luyiourwong/vibe-markdown/internal/llm"
)

// Registry manages multiple MCP tool server connections.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*MCPConnection // server name → connection
	toolIndex   map[string]string         // tool name → server name
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*MCPConnection),
		toolIndex:   make(map[string]string),
	}
}

// LoadAll registers every configured server, logging the ones that fail.
func (r *Registry) LoadAll(ctx context.Context, servers map[string]ToolServerConfig) {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.Register(ctx, name, servers[name]); err != nil {
			log.Printf("Warning: failed to start tool server %s: %v", name, err)
		}
	}
}

// Register launches an MCP tool server and adds its tools to the registry.
func (r *Registry) Register(ctx context.Context, name string, cfg ToolServerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	env := os.Environ()
	for k, v := range cfg.Env {
		// Expand environment variable references like ${VAR}
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			v = os.Getenv(v[2 : len(v)-1])
		}
		env = append(env, k+"="+v)
	}

	conn, err := NewMCPConnection(ctx, name, cfg.Binary, env, cfg.Args...)
	if err != nil {
		return err
	}
	r.add(name, conn)
	return nil
}

// RegisterServer adds an MCP server running in this process.
func (r *Registry) RegisterServer(ctx context.Context, name string, srv *server.MCPServer) error {
	conn, err := NewInProcessConnection(ctx, name, srv)
	if err != nil {
		return err
	}
	r.add(name, conn)
	return nil
}

func (r *Registry) add(name string, conn *MCPConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.connections[name]; ok {
		for _, toolName := range old.ToolNames() {
			delete(r.toolIndex, toolName)
		}
		old.Close()
	}
	r.connections[name] = conn
	for _, toolName := range conn.ToolNames() {
		if other, taken := r.toolIndex[toolName]; taken {
			log.Printf("Warning: tool %s from %s shadows the one from %s", toolName, name, other)
		}
		r.toolIndex[toolName] = name
	}
}

// AllTools returns tool definitions from all registered servers, sorted by name.
func (r *Registry) AllTools() []llm.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []llm.ToolDef
	for serverName, conn := range r.connections {
		for _, def := range conn.ToolDefs() {
			if r.toolIndex[def.Name] == serverName {
				all = append(all, def)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// CallTool routes a tool call to the appropriate MCP server.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	serverName, ok := r.toolIndex[name]
	conn := r.connections[serverName]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return conn.CallTool(ctx, name, args)
}

// Has reports whether a tool with this name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.toolIndex[name]
	return ok
}

// HasTools returns true if any tools are registered.
func (r *Registry) HasTools() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.toolIndex) > 0
}

// Close shuts down all MCP server connections.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, conn := range r.connections {
		conn.Close()
		delete(r.connections, name)
	}
	r.toolIndex = make(map[string]string)
}
