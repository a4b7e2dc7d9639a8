// ABOUTME: Entry point for the agentchat client
// ABOUTME: Wires store, change feed, worker, and coordinator into a terminal chat loop

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/agentchat/internal/auth"
	"github.com/2389/agentchat/internal/chat"
	"github.com/2389/agentchat/internal/chatapi"
	"github.com/2389/agentchat/internal/config"
	"github.com/2389/agentchat/internal/realtime"
	"github.com/2389/agentchat/internal/store"
	"github.com/2389/agentchat/internal/worker"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
                          _        _           _
   __ _  __ _  ___ _ __ | |_ ___| |__   __ _| |_
  / _' |/ _' |/ _ \ '_ \| __/ __| '_ \ / _' | __|
 | (_| | (_| |  __/ | | | || (__| | | | (_| | |_
  \__,_|\__, |\___|_| |_|\__\___|_| |_|\__,_|\__|
        |___/
`

// getConfigPath returns the path to the agentchat config file.
// Priority: AGENTCHAT_CONFIG env var > XDG_CONFIG_HOME/agentchat/config.yaml > ~/.config/agentchat/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AGENTCHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "agentchat", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: agentchat <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  chat       Start an interactive chat session")
		fmt.Println("  threads    List conversation threads")
		fmt.Println("  init       Create a starter config file")
		fmt.Println("  version    Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(ctx)
	case "threads":
		err = runThreads(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures the default slog logger from config.
func setupLogging(cfg config.Logging) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// sessionSource builds the bearer credential source from config. With no
// session configured, a short-lived locally minted token is used so local
// development works out of the box.
func sessionSource(cfg config.Session, logger *slog.Logger) (chatapi.SessionSource, error) {
	var src auth.TokenSource
	switch {
	case cfg.Token != "":
		src = auth.NewStaticTokenSource(cfg.Token)
	case cfg.TokenFile != "":
		src = auth.NewFileTokenSource(cfg.TokenFile)
	case cfg.TokenEnv != "":
		src = auth.NewEnvTokenSource(cfg.TokenEnv)
	default:
		token, err := auth.GenerateDevToken("local-user", time.Hour)
		if err != nil {
			return nil, fmt.Errorf("minting dev token: %w", err)
		}
		logger.Warn("no session configured, using locally minted dev token")
		src = auth.NewStaticTokenSource(token)
	}
	return auth.NewValidatingTokenSource(src), nil
}

func runChat(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)
	logger := slog.Default()

	feed := realtime.NewFeed(logger)
	defer feed.Close()

	st, err := store.NewSQLiteStore(cfg.Database.Path, feed)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := store.NewLocalBlobStore(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	session, err := sessionSource(cfg.Session, logger)
	if err != nil {
		return err
	}

	client := chatapi.NewClient(st, blobs, feed, session, cfg.Agent.DefaultModel, logger)
	coord := chat.NewCoordinator(client, "", logger)

	if cfg.Worker.Enabled {
		w := worker.New(st, feed, cfg.Worker.ChunkDelay, logger)
		go w.Run(ctx)
	}

	threadID, err := coord.CreateNewThread(ctx, "")
	if err != nil {
		return err
	}
	gray.Printf("thread %s (type a message, /help for commands)\n\n", threadID)

	return repl(ctx, coord)
}

// repl reads lines from stdin and drives the coordinator.
func repl(ctx context.Context, coord *chat.Coordinator) error {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("you> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":

		case line == "/quit" || line == "/exit":
			return nil

		case line == "/help":
			fmt.Println("  /new [title]   start a new thread")
			fmt.Println("  /threads       list threads")
			fmt.Println("  /open <id>     open a thread")
			fmt.Println("  /delete <id>   delete a thread")
			fmt.Println("  /cancel        cancel the active agent run")
			fmt.Println("  /quit          exit")

		case strings.HasPrefix(line, "/new"):
			title := strings.TrimSpace(strings.TrimPrefix(line, "/new"))
			id, err := coord.CreateNewThread(ctx, title)
			if err != nil {
				red.Printf("error: %v\n", err)
			} else {
				gray.Printf("thread %s\n", id)
			}

		case line == "/threads":
			if err := coord.LoadThreads(ctx); err != nil {
				red.Printf("error: %v\n", err)
				break
			}
			for _, t := range coord.Threads() {
				marker := " "
				if t.ID == coord.CurrentThreadID() {
					marker = "*"
				}
				fmt.Printf("%s %s  %s  (%s)\n", marker, t.ID, t.Title, t.UpdatedAt.Local().Format(time.DateTime))
			}

		case strings.HasPrefix(line, "/open "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			if err := coord.LoadThreadMessages(ctx, id); err != nil {
				red.Printf("error: %v\n", err)
				break
			}
			for _, msg := range coord.Messages() {
				printMessage(msg, green, gray)
			}

		case strings.HasPrefix(line, "/delete "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/delete "))
			if err := coord.DeleteThreadByID(ctx, id); err != nil {
				red.Printf("error: %v\n", err)
			}

		case line == "/cancel":
			if err := coord.CancelCurrentAgent(ctx); err != nil {
				red.Printf("error: %v\n", err)
			}

		default:
			if err := sendAndStream(ctx, coord, line, green, red); err != nil {
				red.Printf("error: %v\n", err)
			}
		}

		fmt.Print("you> ")
	}
	return scanner.Err()
}

// sendAndStream sends a message and prints assistant messages as the
// coordinator appends them, until the run's stream closes.
func sendAndStream(ctx context.Context, coord *chat.Coordinator, content string, green, red *color.Color) error {
	seen := len(coord.Messages())
	if err := coord.SendMessage(ctx, content, nil); err != nil {
		if errors.Is(err, chat.ErrNoActiveThread) {
			return fmt.Errorf("no thread selected, use /new first")
		}
		return err
	}
	seen++ // skip echo of our own message

	for {
		msgs := coord.Messages()
		for ; seen < len(msgs); seen++ {
			msg := msgs[seen]
			if msg.Type != store.MessageTypeAssistant {
				continue
			}
			if strings.HasPrefix(msg.Content, "Error: ") {
				red.Print(msg.Content)
			} else {
				green.Print(msg.Content)
			}
		}
		if coord.CurrentAgentRunID() == "" && seen == len(coord.Messages()) {
			fmt.Println()
			return nil
		}

		select {
		case <-time.After(25 * time.Millisecond):
		case <-ctx.Done():
			fmt.Println()
			return nil
		}
	}
}

func printMessage(msg *store.Message, green, gray *color.Color) {
	switch msg.Type {
	case store.MessageTypeAssistant:
		green.Printf("assistant> %s\n", msg.Content)
	case store.MessageTypeSystem:
		gray.Printf("system> %s\n", msg.Content)
	default:
		fmt.Printf("you> %s\n", msg.Content)
	}
}

func runThreads(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	st, err := store.NewSQLiteStore(cfg.Database.Path, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	threads, err := st.ListThreads(ctx)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Println("no threads")
		return nil
	}
	for _, t := range threads {
		fmt.Printf("%s  %s  (%s)\n", t.ID, t.Title, t.UpdatedAt.Local().Format(time.DateTime))
	}
	return nil
}

const starterConfig = `database:
  path: ${HOME}/.local/share/agentchat/chat.db

storage:
  dir: ${HOME}/.local/share/agentchat/blobs

session:
  # token: eyJ...
  # token_file: ${HOME}/.config/agentchat/token
  # token_env: AGENTCHAT_TOKEN

agent:
  default_model: claude-3-5-sonnet-20241022

worker:
  enabled: true
  chunk_delay: 50ms

logging:
  level: info
  format: text
`

func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Created %s\n", path)
	return nil
}
