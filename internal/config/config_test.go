package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/i18n"
)

var envKeys = []string{
	"VIBE_MODE", "VIBE_API_URL", "VITE_API_URL", "VIBE_API_KEY", "VIBE_MODEL",
	"VIBE_ROOT_PATH", "VITE_ROOT_PATH", "VIBE_PORT", "VIBE_DB_PATH", "VIBE_LANG",
	"VIBE_UTILITY_MODEL", "TEST_VIBE_KEY",
}

// isolateEnv unsets the config variables for the test and restores them after.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	return t.TempDir()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := isolateEnv(t)

	cfg, err := Load(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "development" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Server.RootPath != "/" || cfg.Server.Port != 8080 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.UI.Lang != i18n.EN || cfg.UI.ViewMode != editor.ViewSplit {
		t.Errorf("ui = %+v", cfg.UI)
	}
	if cfg.Agent.MaxIterations != 10 || cfg.Agent.ContextMaxTokens != 6000 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.API.APIURL == "" || cfg.API.Model == "" {
		t.Errorf("api = %+v", cfg.API)
	}
}

func TestLoadEnvFilePrecedence(t *testing.T) {
	dir := isolateEnv(t)

	writeFile(t, filepath.Join(dir, ".env"), "VITE_API_URL=http://base/v1\nVITE_ROOT_PATH=/base\nVIBE_MODEL=base-model\n")
	writeFile(t, filepath.Join(dir, ".env.production"), "VITE_API_URL=http://prod/v1\n")
	writeFile(t, filepath.Join(dir, ".env.production.local"), "VITE_ROOT_PATH=app\n")
	writeFile(t, filepath.Join(dir, ".env.development"), "VITE_API_URL=http://dev/v1\n")

	cfg, err := Load(Options{Dir: dir, Mode: "production"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.APIURL != "http://prod/v1" {
		t.Errorf("api url = %q, want prod", cfg.API.APIURL)
	}
	if cfg.Server.RootPath != "/app/" {
		t.Errorf("root path = %q, want /app/", cfg.Server.RootPath)
	}
	if cfg.API.Model != "base-model" {
		t.Errorf("model = %q", cfg.API.Model)
	}
}

func TestLoadRealEnvWins(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("VIBE_API_URL", "http://from-env/v1")
	writeFile(t, filepath.Join(dir, ".env"), "VITE_API_URL=http://file/v1\n")

	cfg, err := Load(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.APIURL != "http://from-env/v1" {
		t.Errorf("api url = %q", cfg.API.APIURL)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("TEST_VIBE_KEY", "sk-secret")

	writeFile(t, filepath.Join(dir, "vibemd.yaml"), `
api:
  url: http://localhost:11434/v1
  key: ${TEST_VIBE_KEY}
  model: qwen3:8b
agent:
  utility_model: qwen3:0.6b
ui:
  lang: zh
  view_mode: preview
tools:
  md-files:
    binary: ./bin/md-files
    enabled: true
`)

	cfg, err := Load(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.APIKey != "sk-secret" {
		t.Errorf("api key = %q, want expanded", cfg.API.APIKey)
	}
	if err := cfg.API.Validate(); err != nil {
		t.Errorf("api settings invalid: %v", err)
	}
	if cfg.UI.Lang != i18n.ZH || cfg.UI.ViewMode != editor.ViewPreview {
		t.Errorf("ui = %+v", cfg.UI)
	}
	if cfg.Agent.UtilityModel != "qwen3:0.6b" {
		t.Errorf("utility model = %q", cfg.Agent.UtilityModel)
	}
	if tc, ok := cfg.Tools["md-files"]; !ok || !tc.Enabled || tc.Binary != "./bin/md-files" {
		t.Errorf("tools = %+v", cfg.Tools)
	}
}

func TestLoadRejectsBadLang(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("VIBE_LANG", "fr")

	_, err := Load(Options{Dir: dir})
	if !errors.Is(err, i18n.ErrInvalidLang) {
		t.Fatalf("Load() = %v, want ErrInvalidLang", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolateEnv(t)
	if _, err := Load(Options{Dir: dir, File: filepath.Join(dir, "nope.yaml")}); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestNormalizeRootPath(t *testing.T) {
	tests := map[string]string{
		"":        "/",
		"/":       "/",
		"app":     "/app/",
		"/app":    "/app/",
		"/a/b/":   "/a/b/",
		"  /x/  ": "/x/",
	}
	for in, want := range tests {
		if got := NormalizeRootPath(in); got != want {
			t.Errorf("NormalizeRootPath(%q) = %q, want %q", in, got, want)
		}
	}
}
