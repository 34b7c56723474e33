// Command md-files serves a directory of markdown notes over MCP stdio.
//
// Usage: md-files [root]   (root defaults to $VIBE_NOTES_DIR, then ".")
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/luyiourwong/vibe-markdown/internal/tools/mdfiles"
)

func main() {
	root := os.Getenv("VIBE_NOTES_DIR")
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	if root == "" {
		root = "."
	}

	if err := server.ServeStdio(mdfiles.New(root)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
