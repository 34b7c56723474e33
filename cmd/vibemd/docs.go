package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/render"
	"github.com/luyiourwong/vibe-markdown/internal/storage"
)

var (
	titleFlag  string
	viewFlag   string
	outputFlag string
	htmlFlag   bool
	widthFlag  int
	styleFlag  string
	docLimit   int
)

var docsCmd = &cobra.Command{
	Use:     "docs",
	Aliases: []string{"doc", "d"},
	Short:   "Manage stored markdown documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE:  runDocsList,
}

var docsShowCmd = &cobra.Command{
	Use:   "show <doc-id>",
	Short: "Print a document's markdown source",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsShow,
}

var docsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a markdown file as a new document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsImport,
}

var docsExportCmd = &cobra.Command{
	Use:   "export <doc-id>",
	Short: "Write a document as markdown or HTML",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsExport,
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <doc-id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsDelete,
}

var docsRenderCmd = &cobra.Command{
	Use:   "render <doc-id>",
	Short: "Render a document in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsRender,
}

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docsListCmd, docsShowCmd, docsImportCmd, docsExportCmd, docsDeleteCmd, docsRenderCmd)

	docsListCmd.Flags().IntVar(&docLimit, "limit", 20, "Max documents to show")

	docsImportCmd.Flags().StringVar(&titleFlag, "title", "", "Document title (default: first heading)")
	docsImportCmd.Flags().StringVar(&viewFlag, "view", "", "View mode: editor, split or preview (default from settings)")

	docsExportCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file (default: stdout)")
	docsExportCmd.Flags().BoolVar(&htmlFlag, "html", false, "Export rendered HTML instead of markdown")

	docsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")

	docsRenderCmd.Flags().IntVar(&widthFlag, "width", 80, "Word wrap width")
	docsRenderCmd.Flags().StringVar(&styleFlag, "style", render.StyleAuto, "Style: auto, dark, light or notty")
}

func runDocsList(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := store.ListDocuments(cmd.Context(), storage.ListOptions{Limit: docLimit})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents found.")
		return nil
	}

	fmt.Printf("%-10s %-50s %-8s %s\n", "ID", "TITLE", "VIEW", "UPDATED")
	fmt.Println(strings.Repeat("─", 85))
	for _, d := range docs {
		title := truncate(d.Title, 48)
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%-10s %-50s %-8s %s\n", shortID(d.ID), title, d.ViewMode, timeAgo(d.UpdatedAt))
	}
	return nil
}

func runDocsShow(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := store.GetDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Print(doc.Content)
	if !strings.HasSuffix(doc.Content, "\n") {
		fmt.Println()
	}
	return nil
}

func runDocsImport(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	mode := editor.ViewMode(viewFlag)
	if mode == "" {
		settings, err := store.GetSettings(ctx)
		if err != nil {
			return err
		}
		mode = settings.ViewMode
	}
	if mode == "" {
		mode = editor.ViewSplit
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", editor.ErrInvalidViewMode, mode)
	}

	content := string(data)
	title := titleFlag
	if title == "" {
		title = editor.TitleFromContent(content)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}

	doc := &editor.Document{
		ID:       uuid.New().String(),
		Title:    title,
		Content:  content,
		ViewMode: mode,
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		return err
	}
	fmt.Printf("Imported %s as %s (%s)\n", args[0], shortID(doc.ID), doc.Title)
	return nil
}

func runDocsExport(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := store.GetDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	output := doc.Content
	if htmlFlag {
		output, err = render.HTML(doc.Content)
		if err != nil {
			return err
		}
	}

	if outputFlag != "" {
		return os.WriteFile(outputFlag, []byte(output), 0o644)
	}
	fmt.Print(output)
	return nil
}

func runDocsDelete(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	doc, err := store.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag && !confirm(fmt.Sprintf("Delete document %s - %q?", shortID(doc.ID), doc.Title)) {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := store.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted document %s\n", shortID(doc.ID))
	return nil
}

func runDocsRender(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := store.GetDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out, err := render.Terminal(doc.Content, widthFlag, styleFlag)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
