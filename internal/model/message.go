// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the core data types shared across pipechat:
// conversation messages exchanged with the upstream pipe, and the
// client-side history entries rendered in the chat views.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message authored by the end user.
	RoleUser Role = "user"

	// RoleAssistant is a message authored by the upstream model.
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// CONVERSATION MESSAGES
// =============================================================================

// Message is a single turn in the conversation buffer sent upstream.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a user message with a fresh ID.
func NewUserMessage(content string) Message {
	return Message{
		ID:        generateID("msg"),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message with a fresh ID.
func NewAssistantMessage(content string) Message {
	return Message{
		ID:        generateID("msg"),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// =============================================================================
// HISTORY ENTRIES
// =============================================================================

// Sender identifies the author of a client-side history entry.
// The history vocabulary is distinct from the wire roles: entries record
// what the user saw, not what was sent upstream.
type Sender string

const (
	// SenderUser is a history entry for text the user typed.
	SenderUser Sender = "user"

	// SenderBot is a history entry for a rendered assistant reply.
	SenderBot Sender = "bot"
)

// HistoryEntry is one rendered line of chat history persisted on the client.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// ID GENERATION
// =============================================================================

// generateID creates a random hex identifier with the given prefix.
func generateID(prefix string) string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fall back to a time-based ID if the entropy source fails.
		return prefix + "_" + hex.EncodeToString([]byte(time.Now().Format("150405.000")))
	}
	return prefix + "_" + hex.EncodeToString(b)
}
