// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/pipechat/internal/model"
	"github.com/jeranaias/pipechat/internal/normalize"
	"github.com/jeranaias/pipechat/internal/util"
)

const (
	headerHeight = 1
	inputHeight  = 2
	statusHeight = 1
)

// layout sizes the viewport to the current window.
func (m *Model) layout() {
	vpHeight := m.height - headerHeight - inputHeight - statusHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	if m.viewport.Width == 0 {
		m.viewport = viewport.New(m.width, vpHeight)
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
	}
	m.input.Width = m.width - 4
}

// refreshViewport re-renders the transcript into the viewport.
func (m *Model) refreshViewport(gotoBottom bool) {
	if m.viewport.Width == 0 {
		return
	}
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderEntry(e))
		b.WriteString("\n")
	}
	if m.errText != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.ErrorBox.Render(m.errText))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	if gotoBottom {
		m.viewport.GotoBottom()
	}
}

// renderEntry renders one transcript entry.
func (m *Model) renderEntry(e model.HistoryEntry) string {
	if e.Sender == model.SenderUser {
		label := m.theme.SenderLabel.Render("You")
		return label + "\n" + m.renderUserText(e.Text)
	}

	label := m.theme.SenderLabel.Render("Bot")
	return label + "\n" + m.renderBotText(e.Text)
}

func (m *Model) renderUserText(text string) string {
	return m.theme.UserBubble.Width(m.bubbleWidth()).Render(text)
}

// renderBotText renders reply text, via glamour when available.
func (m *Model) renderBotText(text string) string {
	if m.renderer != nil {
		if out, err := m.renderer.Render(text); err == nil {
			return m.theme.BotBubble.Width(m.bubbleWidth()).Render(strings.TrimRight(out, "\n"))
		}
	}
	// Plain mode falls back to terminal markdown rendering.
	out := normalize.RenderHeadings(normalize.RenderBold(text))
	return m.theme.BotBubble.Width(m.bubbleWidth()).Render(out)
}

func (m *Model) bubbleWidth() int {
	w := m.width - 6
	if w < 20 {
		w = 20
	}
	return w
}

// View renders the chat view.
func (m Model) View() string {
	if !m.ready || m.width == 0 {
		return "Loading..."
	}

	header := m.theme.Header.Width(m.width).Render("pipechat")

	var inputLine string
	if m.state == StateSending {
		inputLine = m.theme.InputContainer.Width(m.width).Render(
			m.spinner.View() + " " + m.theme.ThinkingText.Render("Thinking..."))
	} else {
		inputLine = m.theme.InputContainer.Width(m.width).Render(m.input.View())
	}

	status := m.statusLine()

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		inputLine,
		status,
	)
}

// statusLine renders the bottom status bar.
func (m Model) statusLine() string {
	if m.statusMsg != "" {
		return m.theme.StatusBar.Width(m.width).Render(util.TruncateWidth(m.statusMsg, m.width-2))
	}
	left := m.theme.ShortcutKey.Render("enter") + m.theme.ShortcutDesc.Render(" send  ") +
		m.theme.ShortcutKey.Render("ctrl+l") + m.theme.ShortcutDesc.Render(" clear  ") +
		m.theme.ShortcutKey.Render("ctrl+c") + m.theme.ShortcutDesc.Render(" quit")
	return m.theme.StatusBar.Width(m.width).Render(left)
}

// filenameOf returns the base name for an upload path.
func filenameOf(path string) string {
	return filepath.Base(path)
}
