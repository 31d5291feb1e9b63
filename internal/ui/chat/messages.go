// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines all Bubble Tea message types used by the chat interface.
package chat

import (
	"time"

	"github.com/jeranaias/pipechat/internal/client"
	"github.com/jeranaias/pipechat/internal/history"
)

// =============================================================================
// TURN MESSAGES
// =============================================================================

// ReplyMsg delivers the outcome of a chat turn.
type ReplyMsg struct {
	Reply   *client.ChatReply
	Elapsed time.Duration
	Err     error
}

// UploadResultMsg delivers the outcome of a document upload.
type UploadResultMsg struct {
	Filename string
	Err      error
}

// =============================================================================
// STATE MESSAGES
// =============================================================================

// HistoryLoadedMsg delivers persisted state at startup.
type HistoryLoadedMsg struct {
	State *history.State
	Err   error
}

// ClearedMsg confirms that the conversation was wiped.
type ClearedMsg struct {
	Err error
}

// StatusMsg shows a transient status line.
type StatusMsg struct {
	Text string
}
