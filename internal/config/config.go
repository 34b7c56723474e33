package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/tools"
)

type AgentConfig struct {
	MaxIterations    int    `mapstructure:"max_iterations"`
	ContextMaxTokens int    `mapstructure:"context_max_tokens"`
	ProfilesDir      string `mapstructure:"profiles_dir"`
	// UtilityModel, if set, summarizes long histories instead of the chat model.
	UtilityModel string `mapstructure:"utility_model"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	RootPath string `mapstructure:"root_path"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type UIConfig struct {
	Lang     i18n.Lang       `mapstructure:"lang"`
	ViewMode editor.ViewMode `mapstructure:"view_mode"`
}

type Config struct {
	Mode    string                            `mapstructure:"mode"`
	API     llm.Settings                      `mapstructure:"api"`
	Agent   AgentConfig                       `mapstructure:"agent"`
	Server  ServerConfig                      `mapstructure:"server"`
	Storage StorageConfig                     `mapstructure:"storage"`
	UI      UIConfig                          `mapstructure:"ui"`
	Tools   map[string]tools.ToolServerConfig `mapstructure:"tools"`
}

// Options controls where Load looks.
type Options struct {
	// Mode selects the .env.<mode> files. Defaults to "development".
	Mode string
	// Dir is searched for .env files and vibemd.yaml. Defaults to ".".
	Dir string
	// File, if set, is the only config file read and must exist.
	File string
}

// envFiles returns the .env files for mode, highest precedence first.
func envFiles(dir, mode string) []string {
	return []string{
		filepath.Join(dir, ".env."+mode+".local"),
		filepath.Join(dir, ".env."+mode),
		filepath.Join(dir, ".env.local"),
		filepath.Join(dir, ".env"),
	}
}

// loadEnvFiles applies .env files without overriding variables already set,
// so earlier files and the real environment win.
func loadEnvFiles(dir, mode string) error {
	for _, f := range envFiles(dir, mode) {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

func Load(opts Options) (*Config, error) {
	if opts.Mode == "" {
		opts.Mode = os.Getenv("VIBE_MODE")
	}
	if opts.Mode == "" {
		opts.Mode = "development"
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}

	if err := loadEnvFiles(opts.Dir, opts.Mode); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("vibemd")
		v.AddConfigPath(opts.Dir)
		v.AddConfigPath("$HOME/.vibemd")
	}

	home, _ := os.UserHomeDir()
	v.SetDefault("mode", opts.Mode)
	v.SetDefault("api.url", "https://api.openai.com/v1")
	v.SetDefault("api.model", "gpt-4o-mini")
	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.context_max_tokens", 6000)
	v.SetDefault("agent.profiles_dir", filepath.Join(home, ".vibemd", "profiles"))
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.root_path", "/")
	v.SetDefault("storage.db_path", filepath.Join(home, ".vibemd", "vibemd.db"))
	v.SetDefault("ui.lang", string(i18n.Default))
	v.SetDefault("ui.view_mode", string(editor.ViewSplit))

	// The VITE_ names are shared with the frontend build's .env files.
	v.BindEnv("api.url", "VIBE_API_URL", "VITE_API_URL")
	v.BindEnv("api.key", "VIBE_API_KEY")
	v.BindEnv("api.model", "VIBE_MODEL")
	v.BindEnv("server.root_path", "VIBE_ROOT_PATH", "VITE_ROOT_PATH")
	v.BindEnv("server.port", "VIBE_PORT")
	v.BindEnv("storage.db_path", "VIBE_DB_PATH")
	v.BindEnv("ui.lang", "VIBE_LANG")
	v.BindEnv("agent.utility_model", "VIBE_UTILITY_MODEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.API.APIKey = expandEnv(cfg.API.APIKey)
	cfg.Server.RootPath = NormalizeRootPath(cfg.Server.RootPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated UI settings.
func (c *Config) Validate() error {
	if !c.UI.Lang.Valid() {
		return fmt.Errorf("ui.lang: %w: %q", i18n.ErrInvalidLang, c.UI.Lang)
	}
	if !c.UI.ViewMode.Valid() {
		return fmt.Errorf("ui.view_mode: %w: %q", editor.ErrInvalidViewMode, c.UI.ViewMode)
	}
	return nil
}

// expandEnv resolves a value of the form ${VAR}.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// NormalizeRootPath returns p with one leading and one trailing slash.
func NormalizeRootPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	return "/" + p + "/"
}
