// Package extract pulls durable user facts out of chat exchanges with an
// LLM. The extractor owns the prompt and the tolerant response parsing;
// confidence gating and persistence belong to the learning layer.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FactCategory classifies what kind of durable fact was learned.
type FactCategory string

const (
	CategoryPreferences   FactCategory = "preferences"
	CategoryRelationships FactCategory = "relationships"
	CategoryMilestones    FactCategory = "milestones"
	CategoryBeliefs       FactCategory = "beliefs"
	CategoryDecisions     FactCategory = "decisions"
	CategoryEvents        FactCategory = "events"
)

// Categories lists every valid fact category.
var Categories = []FactCategory{
	CategoryPreferences,
	CategoryRelationships,
	CategoryMilestones,
	CategoryBeliefs,
	CategoryDecisions,
	CategoryEvents,
}

func validCategory(c FactCategory) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ExtractedFact is one candidate fact from an exchange, before any
// confidence gating.
type ExtractedFact struct {
	Statement  string       `json:"fact"`
	Category   FactCategory `json:"category"`
	Confidence float64      `json:"confidence"`
	Evidence   string       `json:"evidence"`
}

// LLMCallFunc is the signature for an LLM inference call.
type LLMCallFunc func(ctx context.Context, prompt string) (string, error)

// Extractor extracts durable facts from chat exchanges.
type Extractor struct {
	llmCall LLMCallFunc
}

// NewExtractor creates a new Extractor.
func NewExtractor(llmCall LLMCallFunc) *Extractor {
	return &Extractor{llmCall: llmCall}
}

// ExtractFromExchange analyzes one (user message, assistant reply) pair
// and returns candidate facts. existingContext lists already-known facts
// so the model does not re-extract them. An exchange with nothing worth
// remembering returns an empty slice, not an error.
func (e *Extractor) ExtractFromExchange(ctx context.Context, userMessage, assistantResponse, existingContext string) ([]ExtractedFact, error) {
	prompt := buildExtractionPrompt(userMessage, assistantResponse, existingContext)

	response, err := e.llmCall(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}

	facts, err := parseFactsResponse(response)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return facts, nil
}

func buildExtractionPrompt(userMessage, assistantResponse, existingContext string) string {
	var b strings.Builder

	b.WriteString(`Analyze this conversation exchange and extract any durable facts about the user that are worth remembering long-term.

IMPORTANT: Only extract facts that are:
- Clearly stated or strongly implied by the USER (not assumptions)
- Likely to remain true over time (preferences, relationships, life events, decisions)
- Specific and actionable for personalization
- NOT already mentioned in the existing context below

Categories:
- preferences: Likes, dislikes, favorite things, preferred ways of doing things
- relationships: People they know, family, friends, colleagues, pets (with context)
- milestones: Important life events, achievements, significant dates, life changes
- beliefs: Values, opinions, worldviews, principles they hold
- decisions: Choices they've made, plans for the future
- events: Recent or upcoming events in their life

`)

	if existingContext != "" {
		b.WriteString("EXISTING CONTEXT (do NOT re-extract these):\n")
		b.WriteString(existingContext)
		b.WriteString("\n\n---\n\n")
	}

	b.WriteString("USER MESSAGE:\n")
	b.WriteString(userMessage)
	b.WriteString("\n\nASSISTANT RESPONSE:\n")
	b.WriteString(assistantResponse)
	b.WriteString(`

---

Extract facts as JSON. If nothing new is worth remembering, return empty array.
Response format:
{
  "facts": [
    {
      "fact": "Concise factual statement about the user",
      "category": "preferences|relationships|milestones|beliefs|decisions|events",
      "confidence": 0.0-1.0,
      "evidence": "The specific text that supports this fact"
    }
  ]
}

Only high-quality, specific facts. Do not speculate. Empty array is fine if nothing notable.`)

	return b.String()
}

type factsEnvelope struct {
	Facts []ExtractedFact `json:"facts"`
}

// parseFactsResponse pulls the first JSON object out of the response (the
// model may wrap it in markdown fences or prose) and normalizes the
// facts: unknown categories and empty statements are dropped, confidence
// is clamped to [0, 1].
func parseFactsResponse(response string) ([]ExtractedFact, error) {
	jsonStr := response
	if idx := strings.Index(response, "{"); idx >= 0 {
		endIdx := strings.LastIndex(response, "}")
		if endIdx > idx {
			jsonStr = response[idx : endIdx+1]
		}
	}

	var envelope factsEnvelope
	if err := json.Unmarshal([]byte(jsonStr), &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal facts JSON: %w", err)
	}

	facts := make([]ExtractedFact, 0, len(envelope.Facts))
	for _, f := range envelope.Facts {
		f.Statement = strings.TrimSpace(f.Statement)
		f.Category = FactCategory(strings.ToLower(strings.TrimSpace(string(f.Category))))

		if f.Statement == "" || !validCategory(f.Category) {
			continue
		}
		if f.Confidence < 0 {
			f.Confidence = 0
		}
		if f.Confidence > 1 {
			f.Confidence = 1
		}

		facts = append(facts, f)
	}

	return facts, nil
}
