// mipal-stream is a terminal client for the MIPAL assistant's streaming
// chat API. It assembles the backend's SSE events into message state, renders
// progress live, and can replay captured transcripts or show saved
// conversations.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Fastlanedevs/mipal-analytics-sub002/internal/log"
	"github.com/Fastlanedevs/mipal-analytics-sub002/messages"
	"github.com/Fastlanedevs/mipal-analytics-sub002/sse"
	"github.com/Fastlanedevs/mipal-analytics-sub002/store"
	"github.com/Fastlanedevs/mipal-analytics-sub002/stream"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.Command{
		Name:   "mipal-stream",
		Usage:  "Stream chat responses from the MIPAL assistant",
		Flags:  defineFlags(),
		Action: runStream,
		Commands: []*cli.Command{
			{
				Name:      "replay",
				Usage:     "Re-assemble one or more captured SSE transcript files",
				ArgsUsage: "FILE [FILE...]",
				Flags: append(defineFlags(),
					&cli.IntFlag{
						Name:  "parallel",
						Usage: "Maximum transcripts processed concurrently",
						Value: 4,
					},
				),
				Action: runReplay,
			},
			{
				Name:      "show",
				Usage:     "Print a saved conversation",
				ArgsUsage: "CONVERSATION_ID",
				Flags:     defineFlags(),
				Action:    runShow,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "baseurl",
			Usage: "Base URL of the MIPAL backend (default http://localhost:8000)",
			Value: defaultBaseURL,
		},
		&cli.StringFlag{
			Name:  "token",
			Usage: "Bearer token for the backend",
			Value: defaultToken,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Whole-stream timeout (default 5m)",
			Value: defaultTimeout,
		},
		&cli.StringFlag{
			Name:    "conversation",
			Aliases: []string{"c"},
			Usage:   "Conversation ID (a new one is generated if omitted)",
		},
		&cli.StringFlag{
			Name:    "prompt",
			Aliases: []string{"p"},
			Usage:   "Prompt to send (reads from stdin if not provided)",
		},
		&cli.BoolFlag{
			Name:  "web-search",
			Usage: "Allow the assistant to search the web",
		},
		&cli.StringFlag{
			Name:  "save",
			Usage: "Directory to persist assembled conversations to",
			Value: defaultSaveDir,
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Suppress step and status output, print content only",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
}

func runStream(ctx context.Context, cmd *cli.Command) error {
	cfg := parseConfig(cmd)
	log.InitLogger(cfg.Debug)
	cfg = resolveConfig(cfg)
	initColors()

	prompt := cfg.Prompt
	if prompt == "" {
		if stdinIsTerminal() {
			return fmt.Errorf("no prompt: use --prompt or pipe one on stdin")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return fmt.Errorf("prompt is empty")
	}

	conversationID := cfg.Conversation
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	messageID := uuid.NewString()

	memStore := store.NewSyncMapConversationStore(nil)
	memStore.Bind(conversationID, messageID)

	renderer := NewTerminalRenderer(cfg.Quiet)
	handler := stream.NewMessageStreamHandler(
		conversationID,
		messageID,
		stream.MultiSink(memStore, renderer),
		stream.Callbacks{
			OnStreamStart: renderer.OnStreamStart,
			OnCodeBlock:   renderer.OnCodeBlock,
		},
	)

	client := sse.NewClient(cfg.BaseURL, cfg.AuthToken, cfg.Timeout)
	err := client.StreamChat(ctx, &sse.ChatRequest{
		ConversationID: conversationID,
		MessageID:      messageID,
		Content:        prompt,
		WebSearch:      cfg.WebSearch,
	}, handler)
	if err != nil {
		return err
	}
	renderer.Finish()

	if cfg.SaveDir != "" {
		if err := saveConversation(cfg.SaveDir, conversationID, memStore); err != nil {
			return err
		}
	}
	return nil
}

func runReplay(ctx context.Context, cmd *cli.Command) error {
	cfg := parseConfig(cmd)
	log.InitLogger(cfg.Debug)
	cfg = resolveConfig(cfg)
	initColors()

	files := cmd.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("no transcript files given")
	}

	memStore := store.NewSyncMapConversationStore(nil)
	conversationIDs := make([]string, len(files))
	messageIDs := make([]string, len(files))

	g, ctx := errgroup.WithContext(ctx)

	// Semaphore for concurrency limiting
	parallel := int(cmd.Int("parallel"))
	if parallel <= 0 || parallel > len(files) {
		parallel = len(files)
	}
	sem := make(chan struct{}, parallel)

	for i, file := range files {
		i, file := i, file
		conversationIDs[i] = transcriptConversationID(file)
		messageIDs[i] = uuid.NewString()
		memStore.Bind(conversationIDs[i], messageIDs[i])

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return ctx.Err()
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open transcript %s: %w", file, err)
			}
			defer f.Close()

			handler := stream.NewMessageStreamHandler(
				conversationIDs[i], messageIDs[i], memStore, stream.Callbacks{})
			return sse.FeedLines(ctx, f, handler)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i, file := range files {
		conv, err := memStore.Get(conversationIDs[i])
		if err != nil {
			continue
		}
		state, ok := conv.GetMessage(messageIDs[i])
		if !ok {
			fmt.Printf("%s: empty transcript\n", file)
			continue
		}
		printSummary(file, state)
	}

	if cfg.SaveDir != "" {
		for _, id := range conversationIDs {
			if err := saveConversation(cfg.SaveDir, id, memStore); err != nil {
				return err
			}
		}
	}
	return nil
}

func runShow(ctx context.Context, cmd *cli.Command) error {
	cfg := parseConfig(cmd)
	log.InitLogger(cfg.Debug)
	cfg = resolveConfig(cfg)
	initColors()

	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("conversation id required")
	}

	fileStore, err := store.NewFileConversationStore(cfg.SaveDir)
	if err != nil {
		return err
	}
	if !fileStore.Exists(id) {
		return fmt.Errorf("conversation %q not found", id)
	}

	conv, err := fileStore.Get(id)
	if err != nil {
		return err
	}
	defer conv.Close()

	for _, messageID := range conv.MessageIDs() {
		state, ok := conv.GetMessage(messageID)
		if !ok {
			continue
		}
		fmt.Println(boldStyle.Styled(messageID))
		for _, step := range state.MetaContent {
			fmt.Printf("  %s %s\n", stepSymbol(step.Status), step.Title)
		}
		fmt.Println(state.Content)
		if state.StopReason != "" {
			fmt.Println(dimStyle.Styled("stop: " + state.StopReason))
		}
	}
	return nil
}

// transcriptConversationID derives a store-safe conversation ID from a
// transcript path
func transcriptConversationID(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		return uuid.NewString()
	}
	return base
}

func printSummary(file string, state messages.StreamingMessageState) {
	fmt.Printf("%s: %d bytes", file, len(state.Content))
	if n := len(state.MetaContent); n > 0 {
		fmt.Printf(", %d steps", n)
	}
	if n := len(state.Artifacts); n > 0 {
		fmt.Printf(", %d artifacts", n)
	}
	if state.StopReason != "" {
		fmt.Printf(", stop=%s", state.StopReason)
	}
	fmt.Println()
}

// saveConversation copies an assembled conversation from the live store
// into the file store
func saveConversation(dir, conversationID string, memStore *store.SyncMapConversationStore) error {
	fileStore, err := store.NewFileConversationStore(dir)
	if err != nil {
		return err
	}

	src, err := memStore.Get(conversationID)
	if err != nil {
		return err
	}
	dst, err := fileStore.Get(conversationID)
	if err != nil {
		return err
	}
	defer dst.Close()

	for _, messageID := range src.MessageIDs() {
		if state, ok := src.GetMessage(messageID); ok {
			dst.PutMessage(messageID, state)
		}
	}
	return nil
}
