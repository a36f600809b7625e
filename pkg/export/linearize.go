package export

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Linearize flattens a conversation tree into the ordered list of user and
// assistant messages along its active branch.
//
// The walk starts at the root (the node whose parent is empty or missing
// from the mapping) and descends one child at a time. At a fork it prefers
// the child that lies on the current_node ancestry; otherwise it takes the
// first child. System and tool messages and messages with no text content
// are dropped. When every surviving message carries a timestamp the result
// is stably re-sorted by timestamp, otherwise mapping order is kept.
//
// A tree with no discoverable root linearizes to an empty list.
func Linearize(tree *ConversationTree) []Message {
	if tree == nil || len(tree.Mapping) == 0 {
		return nil
	}

	root := findRoot(tree.Mapping)
	if root == "" {
		return nil
	}

	preferred := preferredBranch(tree)

	var messages []Message
	visited := make(map[string]bool, len(tree.Mapping))

	current := root
	for current != "" && !visited[current] {
		visited[current] = true

		node, ok := tree.Mapping[current]
		if !ok {
			break
		}

		if msg, keep := liftMessage(node.Message); keep {
			messages = append(messages, msg)
		}

		current = nextChild(node.Children, preferred)
	}

	sortByTimestamp(messages)

	return messages
}

// findRoot returns the ID of the first node with no parent in the mapping.
// Map iteration order is random, but a well-formed export has exactly one
// root so the scan is deterministic in practice.
func findRoot(mapping map[string]Node) string {
	for id, node := range mapping {
		if node.Parent == "" {
			return id
		}
		if _, ok := mapping[node.Parent]; !ok {
			return id
		}
	}
	return ""
}

// preferredBranch collects the node IDs on the path from current_node back
// to the root. These mark the branch the user last had active.
func preferredBranch(tree *ConversationTree) map[string]bool {
	preferred := make(map[string]bool)

	current := tree.CurrentNode
	for current != "" && !preferred[current] {
		preferred[current] = true
		node, ok := tree.Mapping[current]
		if !ok {
			break
		}
		current = node.Parent
	}

	return preferred
}

func nextChild(children []string, preferred map[string]bool) string {
	if len(children) == 0 {
		return ""
	}
	for _, child := range children {
		if preferred[child] {
			return child
		}
	}
	return children[0]
}

// liftMessage converts a raw wire message into a linearized Message,
// reporting whether it should be kept.
func liftMessage(raw *RawMessage) (Message, bool) {
	if raw == nil {
		return Message{}, false
	}

	role := Role(raw.Author.Role)
	if role != RoleUser && role != RoleAssistant {
		return Message{}, false
	}

	content := extractContent(raw.Content)
	if content == "" {
		return Message{}, false
	}

	return Message{
		ID:        raw.ID,
		Role:      role,
		Content:   content,
		Timestamp: floatTime(raw.CreateTime),
	}, true
}

// extractContent joins the text of a message's content. Parts that are not
// plain strings (image refs, tool payloads) are dropped.
func extractContent(content RawContent) string {
	if len(content.Parts) > 0 {
		texts := make([]string, 0, len(content.Parts))
		for _, part := range content.Parts {
			var s string
			if err := json.Unmarshal(part, &s); err != nil {
				continue
			}
			if s != "" {
				texts = append(texts, s)
			}
		}
		return strings.TrimSpace(strings.Join(texts, "\n"))
	}

	return strings.TrimSpace(content.Text)
}

// sortByTimestamp re-orders messages by timestamp, but only when every
// message has one. Mixed or missing timestamps would interleave dated and
// undated messages arbitrarily, so tree order wins in that case.
func sortByTimestamp(messages []Message) {
	for _, m := range messages {
		if m.Timestamp.IsZero() {
			return
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}

func floatTime(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
