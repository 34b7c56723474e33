package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luyiourwong/vibe-markdown/internal/server"
	"github.com/luyiourwong/vibe-markdown/internal/storage/sqlite"
	"github.com/luyiourwong/vibe-markdown/internal/tools"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the editor web server",
	Long: `Start the HTTP server with the REST API, WebSocket assistant and the
embedded web UI, all under the configured root path (VITE_ROOT_PATH).

Examples:
  vibemd serve
  vibemd serve --port 9090
  vibemd serve --mode production`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if modelFlag != "" {
		cfg.API.Model = modelFlag
	}

	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	registry := tools.NewRegistry()
	defer registry.Close()
	registry.LoadAll(cmd.Context(), cfg.Tools)
	if registry.HasTools() {
		log.Printf("Tools: %d external tools loaded", len(registry.AllTools()))
	}

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(cfg, store, registry)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	if err := srv.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
