// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/pipechat/internal/client"
	"github.com/jeranaias/pipechat/internal/history"
	"github.com/jeranaias/pipechat/internal/model"
	"github.com/jeranaias/pipechat/internal/ui/styles"
)

// Apology is shown in place of a reply when a turn fails.
const Apology = "Sorry, there was an error processing your request."

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady   State = iota // Ready for input
	StateSending              // Waiting for the reply
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// State
	state State

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int

	// Conversation
	entries        []model.HistoryEntry
	threadID       string
	conversationID string

	// Backends
	api   *client.Client
	store *history.Store

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Markdown rendering; nil in plain mode
	renderer *glamour.TermRenderer

	// Transient state
	errText   string
	statusMsg string
	ready     bool
	showStats bool
}

// Options configures the chat model.
type Options struct {
	// Plain disables markdown rendering.
	Plain bool
	// ShowStats displays turn timing in the status bar.
	ShowStats bool
}

// New creates a new chat model.
func New(theme *styles.Theme, api *client.Client, store *history.Store, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	m := Model{
		state:     StateReady,
		theme:     theme,
		api:       api,
		store:     store,
		input:     ti,
		spinner:   sp,
		showStats: opts.ShowStats,
	}

	if !opts.Plain {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		)
		if err == nil {
			m.renderer = renderer
		}
	}

	return m
}

// Init loads persisted state.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadHistoryCmd(), m.spinner.Tick)
}

// Entries returns the transcript currently held by the model.
func (m Model) Entries() []model.HistoryEntry {
	out := make([]model.HistoryEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ThreadID returns the provider thread ID held by the model.
func (m Model) ThreadID() string { return m.threadID }

// loadHistoryCmd reads persisted state and delivers it via HistoryLoadedMsg.
func (m Model) loadHistoryCmd() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		if store == nil {
			return HistoryLoadedMsg{}
		}
		state, err := store.Load()
		return HistoryLoadedMsg{State: state, Err: err}
	}
}
