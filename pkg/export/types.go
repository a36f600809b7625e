// Package export parses raw conversation exports and linearizes their
// branching message trees into ordered message lists.
//
// The supported wire format is the ChatGPT-style export: an array of
// conversation objects, each carrying a node mapping (id -> node), a
// current_node pointer marking the active branch, and per-node parent and
// children links. Edited or regenerated messages appear as forks in the
// mapping; the current_node ancestry decides which branch is canonical.
package export

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTree is one conversation from a raw export: a parent/child
// message graph plus the pointer identifying the active branch.
// It is immutable input and is never mutated during linearization.
type ConversationTree struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	CreateTime  float64         `json:"create_time"`
	UpdateTime  float64         `json:"update_time"`
	Mapping     map[string]Node `json:"mapping"`
	CurrentNode string          `json:"current_node"`
}

// Node is a single entry in a conversation tree's mapping. Nodes without a
// message (the root placeholder, tool scaffolding) are traversed for
// structure but contribute nothing to the linearized output.
type Node struct {
	ID       string      `json:"id"`
	Message  *RawMessage `json:"message"`
	Parent   string      `json:"parent"`
	Children []string    `json:"children"`
}

// RawMessage is a message as it appears on the wire.
type RawMessage struct {
	ID         string     `json:"id"`
	Author     Author     `json:"author"`
	Content    RawContent `json:"content"`
	CreateTime float64    `json:"create_time"`
}

// Author carries the message role. System and tool authors are filtered
// out during linearization.
type Author struct {
	Role string `json:"role"`
}

// RawContent holds message content in either of the export's two shapes:
// a list of parts (which may mix text fragments with non-text refs) or a
// single text field.
type RawContent struct {
	ContentType string            `json:"content_type"`
	Parts       []json.RawMessage `json:"parts"`
	Text        string            `json:"text"`
}

// Message is a linearized conversation message. Created once at parse time,
// never mutated.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time // zero when the export carried no timestamp
}

// Created returns the conversation creation time, or the zero time when
// the export carried none.
func (t *ConversationTree) Created() time.Time {
	if t.CreateTime <= 0 {
		return time.Time{}
	}
	sec := int64(t.CreateTime)
	nsec := int64((t.CreateTime - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
