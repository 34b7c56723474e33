package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/luyiourwong/vibe-markdown/internal/agent"
	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/render"
	"github.com/luyiourwong/vibe-markdown/internal/storage"
	"github.com/luyiourwong/vibe-markdown/internal/tools"
)

var (
	docFlag  string
	resumeID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant, optionally editing a stored document",
	Long: `Start an interactive conversation with the assistant. With --doc the
assistant can read and edit that document; edits are saved after each turn.

Examples:
  vibemd chat
  vibemd chat --doc 3f2a9c1e
  vibemd chat --lang zh --model gpt-4o`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&docFlag, "doc", "", "Document ID (or unique prefix) to edit")
	rootCmd.AddCommand(chatCmd)
}

// chatSession is the state of one REPL.
type chatSession struct {
	store storage.Store
	sess  *storage.Session
	agent *agent.Agent
	api   llm.Settings
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	profile, err := agent.LoadNamedProfile(cfg.Agent.ProfilesDir, profileFlag)
	if err != nil {
		return err
	}

	api, lang, err := resolveSettings(ctx, cfg, store)
	if err != nil {
		return err
	}

	var sess *storage.Session
	var history []llm.Message
	if resumeID != "" {
		sess, err = store.GetSession(ctx, resumeID)
		if err != nil {
			return err
		}
		history, err = store.LoadMessages(ctx, sess.ID)
		if err != nil {
			return err
		}
		if modelFlag == "" && sess.Model != "" {
			api.Model = sess.Model
		}
		lang = sess.Lang
		if docFlag == "" {
			docFlag = sess.DocumentID
		}
	} else if modelFlag == "" && profile != nil && profile.Model != "" {
		api.Model = profile.Model
	}
	if err := api.Validate(); err != nil {
		return fmt.Errorf("%w (set api.key in vibemd.yaml, VIBE_API_KEY, or save settings in the web UI)", err)
	}

	var doc *editor.Document
	if docFlag != "" {
		doc, err = store.GetDocument(ctx, docFlag)
		if err != nil {
			return err
		}
	}

	registry := tools.NewRegistry()
	defer registry.Close()
	registry.LoadAll(ctx, cfg.Tools)

	a := agent.New(llm.NewClient(api), registry, cfg.Agent.MaxIterations, lang)
	a.SetMaxTokens(cfg.Agent.ContextMaxTokens)
	a.ApplyProfile(profile)
	if cfg.Agent.UtilityModel != "" {
		utility := api
		utility.Model = cfg.Agent.UtilityModel
		a.SetUtilityLLM(llm.NewClient(utility))
	}
	if len(history) > 0 {
		a.SetHistory(history)
	}

	if sess == nil {
		sess = &storage.Session{
			ID:      uuid.New().String(),
			Status:  storage.StatusActive,
			Model:   api.Model,
			Profile: profileFlag,
			Lang:    lang,
		}
		if doc != nil {
			sess.DocumentID = doc.ID
		}
		if err := store.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
	}

	fmt.Printf("vibemd - Assistant Chat\n")
	if profile != nil {
		fmt.Printf("Profile: %s\n", profile.Name)
	}
	fmt.Printf("Model: %s | Lang: %s | Session: %s\n", api.Model, lang, shortID(sess.ID))
	if doc != nil {
		fmt.Printf("Document: %s (%s)\n", doc.Title, shortID(doc.ID))
	}
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	a.OnTextDelta = func(delta string) {
		fmt.Print(delta)
	}
	a.OnToolCall = func(name string, args map[string]any) {
		fmt.Printf("\n  \033[33m⚡ Tool: %s\033[0m\n", agent.FormatToolCall(name, args))
	}
	a.OnToolResult = func(name string, result string) {
		lines := strings.Split(strings.TrimSpace(result), "\n")
		preview := lines
		if len(preview) > 8 {
			preview = preview[:8]
		}
		for _, line := range preview {
			fmt.Printf("  \033[90m│ %s\033[0m\n", line)
		}
		if len(lines) > 8 {
			fmt.Printf("  \033[90m│ ... (%d more lines)\033[0m\n", len(lines)-8)
		}
		fmt.Println()
	}

	cs := &chatSession{store: store, sess: sess, agent: a, api: api}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36myou>\033[0m ",
		HistoryFile:     filepath.Join(os.TempDir(), "vibemd_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C cancels the active request, not the whole app.
	var reqCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if reqCancel != nil {
				reqCancel()
			}
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := cs.handleCommand(ctx, input); quit {
				return nil
			}
			continue
		}

		reqCtx, cancel := context.WithCancel(ctx)
		reqCancel = cancel

		fmt.Printf("\n\033[32massistant>\033[0m ")
		err = cs.turn(reqCtx, input)
		wasInterrupted := reqCtx.Err() != nil
		cancel()
		reqCancel = nil

		if err != nil {
			if wasInterrupted {
				fmt.Println("\n(interrupted)")
				continue
			}
			fmt.Printf("\n\033[31merror: %s\033[0m\n\n", err)
			continue
		}

		fmt.Printf("\n\n")
	}
}

// turn runs one user message against a fresh copy of the document and saves
// the conversation and any edits.
func (cs *chatSession) turn(ctx context.Context, input string) error {
	if cs.sess.Title == "" {
		cs.sess.Title = editor.TitleFromContent(input)
		cs.store.UpdateSession(ctx, cs.sess)
	}

	var doc *editor.Document
	var buf *editor.Buffer
	if cs.sess.DocumentID != "" {
		d, err := cs.store.GetDocument(ctx, cs.sess.DocumentID)
		if err != nil {
			return err
		}
		doc, buf = d, editor.NewBuffer(d.Content)
	}
	cs.agent.SetDocument(buf)

	_, runErr := cs.agent.RunStreaming(ctx, input)

	bg := context.WithoutCancel(ctx)
	if err := cs.store.SaveMessages(bg, cs.sess.ID, cs.agent.History()); err != nil {
		return fmt.Errorf("saving messages: %w", err)
	}
	if buf != nil && buf.Text() != doc.Content {
		doc.Content = buf.Text()
		if err := cs.store.UpdateDocument(bg, doc); err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
		fmt.Printf("\n  \033[90m(document saved, %d edited ranges: %v)\033[0m", len(buf.Highlights()), buf.Highlights())
	}
	return runErr
}

// handleCommand runs a slash command and reports whether to quit.
func (cs *chatSession) handleCommand(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		return true
	case "/reset":
		cs.agent.Reset()
		fmt.Println("Conversation reset.")
		fmt.Println()
	case "/model":
		if len(fields) < 2 {
			fmt.Printf("Model: %s\n\n", cs.api.Model)
			return false
		}
		cs.switchModel(ctx, fields[1])
	case "/history":
		fmt.Println(cs.agent.HistoryJSON())
		fmt.Println()
	case "/doc":
		if cs.sess.DocumentID == "" {
			fmt.Println("No document attached. Start with --doc <id>.")
			fmt.Println()
			return false
		}
		doc, err := cs.store.GetDocument(ctx, cs.sess.DocumentID)
		if err != nil {
			fmt.Printf("error: %s\n\n", err)
			return false
		}
		out, err := render.Terminal(doc.Content, 80, render.StyleAuto)
		if err != nil {
			out = doc.Content
		}
		fmt.Println(out)
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /doc      - Show the attached document")
		fmt.Println("  /model    - Show or switch the model (/model <name>)")
		fmt.Println("  /reset    - Clear conversation history")
		fmt.Println("  /history  - Show raw conversation history (JSON)")
		fmt.Println("  /quit     - Exit")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return false
}

// switchModel points the agent at another model, keeping the conversation.
func (cs *chatSession) switchModel(ctx context.Context, model string) {
	next := cs.api
	next.Model = model
	if err := next.Validate(); err != nil {
		fmt.Printf("error: %s\n\n", err)
		return
	}
	cs.api = next
	cs.agent.SetClient(llm.NewClient(next))

	cs.sess.Model = model
	if err := cs.store.UpdateSession(ctx, cs.sess); err != nil {
		fmt.Printf("error: saving session model: %s\n\n", err)
		return
	}
	fmt.Printf("Switched to %s.\n\n", model)
}
