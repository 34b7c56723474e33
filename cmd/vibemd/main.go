package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/luyiourwong/vibe-markdown/internal/config"
	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/storage"
	"github.com/luyiourwong/vibe-markdown/internal/storage/sqlite"
)

var (
	modeFlag    string
	configFlag  string
	modelFlag   string
	langFlag    string
	profileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "vibemd",
	Short: "vibemd - markdown editor with an AI assistant",
	Long: `vibemd serves a markdown editor whose assistant reads and edits your
documents through any OpenAI-compatible chat completions endpoint.

Configuration comes from vibemd.yaml, the environment, and the same .env files
the frontend build reads (VITE_API_URL, VITE_ROOT_PATH).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "Env mode selecting .env.<mode> files (default development)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./vibemd.yaml or ~/.vibemd/vibemd.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", "", "Assistant language: en or zh")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Agent profile to use (e.g. default, editor)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{Mode: modeFlag, File: configFlag})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if langFlag != "" {
		lang, err := i18n.ParseLang(langFlag)
		if err != nil {
			return nil, err
		}
		cfg.UI.Lang = lang
	}
	return cfg, nil
}

func openStore() (*config.Config, storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	return cfg, store, nil
}

// resolveSettings merges settings saved from the web UI over the config,
// returning the connection settings and the interface language.
// Flags win over both.
func resolveSettings(ctx context.Context, cfg *config.Config, store storage.Store) (llm.Settings, i18n.Lang, error) {
	stored, err := store.GetSettings(ctx)
	if err != nil {
		return llm.Settings{}, "", err
	}
	api := stored.Settings.Merge(cfg.API)
	if modelFlag != "" {
		api.Model = modelFlag
	}

	lang := stored.Lang
	if langFlag != "" || lang == "" {
		lang = cfg.UI.Lang
	}
	return api, lang, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxLen {
		return string(r[:maxLen]) + "..."
	}
	return s
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	var answer string
	fmt.Scanln(&answer)
	return strings.ToLower(answer) == "y"
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
