package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryIngested is emitted after an export import finishes.
	EventTypeMemoryIngested = "keepsake.memory.ingested"

	// EventTypeFactLearned is emitted after facts are learned from a chat
	// exchange.
	EventTypeFactLearned = "keepsake.fact.learned"
)

// Event is a transport-neutral memory event envelope. Exactly one payload
// field is set, matching EventType.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	UserID        string    `json:"user_id"`

	Ingested *IngestedPayload `json:"ingested,omitempty"`
	Learned  *LearnedPayload  `json:"learned,omitempty"`
}

// IngestedPayload describes one finished import run.
type IngestedPayload struct {
	Conversations int `json:"conversations"`
	Chunks        int `json:"chunks"`
	Degraded      int `json:"degraded,omitempty"`
	Skipped       int `json:"skipped,omitempty"`
}

// LearnedPayload describes facts learned from one exchange.
type LearnedPayload struct {
	Facts           int    `json:"facts"`
	SourceMessageID string `json:"source_message_id,omitempty"`
}

// NewMemoryIngested builds a memory.ingested event.
func NewMemoryIngested(userID string, payload IngestedPayload) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMemoryIngested,
		EventID:       uuid.New().String(),
		EmittedAt:     time.Now().UTC(),
		UserID:        userID,
		Ingested:      &payload,
	}
}

// NewFactLearned builds a fact.learned event.
func NewFactLearned(userID string, payload LearnedPayload) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeFactLearned,
		EventID:       uuid.New().String(),
		EmittedAt:     time.Now().UTC(),
		UserID:        userID,
		Learned:       &payload,
	}
}
