// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for pipechat CLI.
//
// Handles the "pipechat chat" command which provides an interactive REPL
// against the local API server.
//
// Interactive Commands (during chat):
//   /help            Show available commands
//   /clear           Clear conversation history
//   /upload <file>   Upload a document to memory
//   /quit            Exit chat
//   Ctrl+C           Abort current input
//   Ctrl+D           Exit chat
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/pipechat/internal/client"
	"github.com/jeranaias/pipechat/internal/config"
	"github.com/jeranaias/pipechat/internal/history"
	"github.com/jeranaias/pipechat/internal/model"
	"github.com/jeranaias/pipechat/internal/normalize"
	"github.com/jeranaias/pipechat/internal/ui/chat"
	"github.com/jeranaias/pipechat/internal/ui/styles"
	"github.com/jeranaias/pipechat/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	botStyle = lipgloss.NewStyle().
			Foreground(styles.BotBubbleFg)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose)
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	historyFile := filepath.Join(dir, "chat_history")

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	return &ChatCLI{line: line, historyFile: historyFile}
}

// Prompt reads one line of input.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	text, err := c.line.Prompt(prompt)
	if err == nil && strings.TrimSpace(text) != "" {
		c.line.AppendHistory(text)
	}
	return text, err
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	if f, err := os.Create(c.historyFile); err == nil {
		c.line.WriteHistory(f)
		f.Close()
	}
	c.line.Close()
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the interactive chat REPL.
func HandleChat(args Args) {
	cfg := config.Global()
	api := client.NewClient(fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port))

	store, state := openHistory(args)
	if store != nil {
		defer store.Close()
	}

	threadID := ""
	conversationID := ""
	if state != nil {
		threadID = state.ThreadID
		conversationID = state.ConversationID
	}

	repl := NewChatCLI()
	defer repl.Close()

	if !args.Quiet {
		fmt.Println(welcomeStyle.Render("pipechat"))
		fmt.Println(infoStyle.Render("Type /help for commands, /quit to exit."))
		if state != nil && len(state.Entries) > 0 {
			fmt.Println(infoStyle.Render(fmt.Sprintf("Resumed conversation with %d messages.", len(state.Entries))))
			last := strings.ReplaceAll(state.Entries[len(state.Entries)-1].Text, "\n", " ")
			fmt.Println(infoStyle.Render("Last: " + util.TruncateRunes(last, 60)))
		}
		fmt.Println()
	}

	for {
		text, err := repl.Prompt(promptStyle.Render("> "))
		if err != nil {
			// Ctrl+D or Ctrl+C aborts the session.
			fmt.Println()
			return
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "/") {
			if quit := runReplCommand(text, api, store, &threadID, &conversationID); quit {
				return
			}
			continue
		}

		if store != nil {
			store.AppendEntry(model.SenderUser, text)
		}

		reply, err := api.Send(context.Background(), text, threadID, conversationID)
		if err != nil {
			fmt.Println(errorStyle.Render(chat.Apology))
			if args.Verbose {
				fmt.Println(infoStyle.Render(err.Error()))
			}
			continue
		}

		if threadID == "" && reply.ThreadID != "" {
			threadID = reply.ThreadID
			if store != nil {
				store.SetThreadID(threadID)
			}
		}
		if conversationID == "" && reply.ConversationID != "" {
			conversationID = reply.ConversationID
			if store != nil {
				store.SetConversationID(conversationID)
			}
		}

		out := normalize.Normalize(reply.Response)
		if store != nil {
			store.AppendEntry(model.SenderBot, out)
		}
		fmt.Println(botStyle.Render(out))
		fmt.Println()
	}
}

// runReplCommand dispatches a slash command; returns true to exit the REPL.
func runReplCommand(text string, api *client.Client, store *history.Store, threadID, conversationID *string) bool {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true

	case "/clear", "/c":
		*threadID = ""
		*conversationID = ""
		if store != nil {
			if err := store.Clear(); err != nil {
				fmt.Println(errorStyle.Render("Could not clear history: " + err.Error()))
				return false
			}
		}
		fmt.Println(infoStyle.Render("Conversation cleared."))

	case "/upload":
		if len(fields) < 2 {
			fmt.Println(errorStyle.Render("Usage: /upload <file>"))
			return false
		}
		path := strings.TrimSpace(strings.TrimPrefix(text, "/upload"))
		if err := uploadFile(api, path); err != nil {
			fmt.Println(errorStyle.Render("Upload failed: " + err.Error()))
		} else {
			fmt.Println(styles.RenderSuccess("Uploaded " + filepath.Base(path)))
		}

	case "/help", "/h":
		fmt.Println(infoStyle.Render("Commands: /clear /upload <file> /quit"))

	default:
		fmt.Println(errorStyle.Render("Unknown command: " + fields[0]))
	}
	return false
}

// uploadFile reads a local file and sends it to the upload endpoint.
func uploadFile(api *client.Client, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = api.Upload(context.Background(), string(data), filepath.Base(path))
	return err
}

// openHistory opens the persistent transcript store.
// Failure is non-fatal: the session just won't persist.
func openHistory(args Args) (*history.Store, *history.State) {
	path, err := history.DefaultPath()
	if err != nil {
		return nil, nil
	}
	store, err := history.Open(path)
	if err != nil {
		if !args.Quiet {
			fmt.Fprintf(os.Stderr, "Warning: could not open history: %v\n", err)
		}
		return nil, nil
	}
	state, err := store.Load()
	if err != nil {
		return store, nil
	}
	return store, state
}
