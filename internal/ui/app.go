// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the root Bubble Tea model for the pipechat TUI.
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/pipechat/internal/client"
	"github.com/jeranaias/pipechat/internal/history"
	"github.com/jeranaias/pipechat/internal/ui/chat"
	"github.com/jeranaias/pipechat/internal/ui/styles"
)

// App is the root model; it owns the chat view.
type App struct {
	chat chat.Model
}

// NewApp creates the root model.
func NewApp(api *client.Client, store *history.Store, opts chat.Options) App {
	theme := styles.NewTheme()
	return App{
		chat: chat.New(theme, api, store, opts),
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return a.chat.Init()
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	a.chat, cmd = a.chat.Update(msg)
	return a, cmd
}

// View implements tea.Model.
func (a App) View() string {
	return a.chat.View()
}

// Run starts the TUI and blocks until it exits.
func Run(api *client.Client, store *history.Store, opts chat.Options) error {
	p := tea.NewProgram(NewApp(api, store, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
