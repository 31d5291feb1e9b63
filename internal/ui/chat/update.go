// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/pipechat/internal/model"
	"github.com/jeranaias/pipechat/internal/normalize"
)

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.layout()
		m.refreshViewport(true)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyCtrlL:
			return m, m.clearCmd()
		case tea.KeyEnter:
			if m.state == StateReady {
				return m.submit()
			}
			return m, nil
		}

	case spinner.TickMsg:
		if m.state == StateSending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case HistoryLoadedMsg:
		if msg.Err != nil {
			m.errText = "Could not load history: " + msg.Err.Error()
		} else if msg.State != nil {
			m.entries = msg.State.Entries
			m.threadID = msg.State.ThreadID
			m.conversationID = msg.State.ConversationID
		}
		m.ready = true
		m.refreshViewport(true)

	case ReplyMsg:
		m.state = StateReady
		if msg.Err != nil {
			m.errText = Apology
			m.refreshViewport(true)
			return m, nil
		}
		m.errText = ""
		// Cleanup steps only; markdown is rendered at display time.
		text := normalize.StripWrappingQuotes(
			normalize.StripEscapes(
				normalize.DecodeNewlines(
					normalize.UnwrapEnvelope(msg.Reply.Response))))
		m.appendEntry(model.SenderBot, text)
		if m.threadID == "" && msg.Reply.ThreadID != "" {
			m.threadID = msg.Reply.ThreadID
			m.persistThreadID()
		}
		if m.conversationID == "" && msg.Reply.ConversationID != "" {
			m.conversationID = msg.Reply.ConversationID
			m.persistConversationID()
		}
		if m.showStats {
			m.statusMsg = fmt.Sprintf("Reply in %.1fs", msg.Elapsed.Seconds())
		}
		m.refreshViewport(true)

	case UploadResultMsg:
		m.state = StateReady
		if msg.Err != nil {
			m.errText = "Upload failed: " + msg.Err.Error()
		} else {
			m.errText = ""
			m.statusMsg = fmt.Sprintf("Uploaded %s", msg.Filename)
		}

	case ClearedMsg:
		if msg.Err != nil {
			m.errText = "Could not clear history: " + msg.Err.Error()
		} else {
			m.entries = nil
			m.threadID = ""
			m.conversationID = ""
			m.errText = ""
			m.statusMsg = "Conversation cleared"
		}
		m.refreshViewport(true)

	case StatusMsg:
		m.statusMsg = msg.Text
	}

	if m.state == StateReady {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit handles an Enter press in the ready state.
func (m Model) submit() (Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	m.statusMsg = ""

	// Slash commands never reach the provider.
	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}

	m.appendEntry(model.SenderUser, text)
	m.state = StateSending
	m.errText = ""
	m.refreshViewport(true)

	return m, tea.Batch(m.sendCmd(text), m.spinner.Tick)
}

// runCommand dispatches a slash command.
func (m Model) runCommand(text string) (Model, tea.Cmd) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/clear":
		return m, m.clearCmd()

	case "/upload":
		if len(fields) < 2 {
			m.errText = "Usage: /upload <file>"
			return m, nil
		}
		path := strings.TrimSpace(strings.TrimPrefix(text, "/upload"))
		m.state = StateSending
		return m, tea.Batch(m.uploadCmd(path), m.spinner.Tick)

	case "/help":
		m.statusMsg = "Commands: /clear /upload <file> /quit"
		return m, nil

	default:
		m.errText = fmt.Sprintf("Unknown command: %s", fields[0])
		return m, nil
	}
}

// sendCmd runs one chat turn against the API server.
func (m Model) sendCmd(message string) tea.Cmd {
	api := m.api
	threadID := m.threadID
	conversationID := m.conversationID
	return func() tea.Msg {
		start := time.Now()
		reply, err := api.Send(context.Background(), message, threadID, conversationID)
		return ReplyMsg{Reply: reply, Elapsed: time.Since(start), Err: err}
	}
}

// uploadCmd reads a local file and uploads its text.
func (m Model) uploadCmd(path string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return UploadResultMsg{Filename: path, Err: err}
		}
		_, err = api.Upload(context.Background(), string(data), filenameOf(path))
		return UploadResultMsg{Filename: filenameOf(path), Err: err}
	}
}

// clearCmd wipes the persisted conversation.
func (m Model) clearCmd() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		if store == nil {
			return ClearedMsg{}
		}
		return ClearedMsg{Err: store.Clear()}
	}
}

// appendEntry adds a transcript entry and persists it.
func (m *Model) appendEntry(sender model.Sender, text string) {
	entry := model.HistoryEntry{Sender: sender, Text: text}
	if m.store != nil {
		if id, err := m.store.AppendEntry(sender, text); err == nil {
			entry.ID = id
		}
	}
	m.entries = append(m.entries, entry)
}

func (m *Model) persistThreadID() {
	if m.store != nil {
		m.store.SetThreadID(m.threadID)
	}
}

func (m *Model) persistConversationID() {
	if m.store != nil {
		m.store.SetConversationID(m.conversationID)
	}
}
