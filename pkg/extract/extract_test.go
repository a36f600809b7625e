package extract

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestExtract(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Extract Suite")
}

var _ = Describe("Extractor", func() {
	It("extracts facts from an exchange using a mock LLM", func() {
		mockLLM := func(_ context.Context, prompt string) (string, error) {
			Expect(prompt).To(ContainSubstring("USER MESSAGE:\nI just moved to Lisbon"))
			return `{
				"facts": [
					{
						"fact": "Lives in Lisbon",
						"category": "milestones",
						"confidence": 0.9,
						"evidence": "I just moved to Lisbon"
					}
				]
			}`, nil
		}

		extractor := NewExtractor(mockLLM)
		facts, err := extractor.ExtractFromExchange(context.Background(),
			"I just moved to Lisbon", "Congratulations on the move!", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Statement).To(Equal("Lives in Lisbon"))
		Expect(facts[0].Category).To(Equal(CategoryMilestones))
		Expect(facts[0].Confidence).To(BeNumerically("~", 0.9, 1e-6))
	})

	It("includes existing context in the prompt when given", func() {
		var seenPrompt string
		mockLLM := func(_ context.Context, prompt string) (string, error) {
			seenPrompt = prompt
			return `{"facts": []}`, nil
		}

		extractor := NewExtractor(mockLLM)
		_, err := extractor.ExtractFromExchange(context.Background(),
			"hi", "hello", "- Works at Acme")
		Expect(err).NotTo(HaveOccurred())
		Expect(seenPrompt).To(ContainSubstring("EXISTING CONTEXT"))
		Expect(seenPrompt).To(ContainSubstring("- Works at Acme"))
	})

	It("propagates LLM failures", func() {
		mockLLM := func(_ context.Context, _ string) (string, error) {
			return "", errors.New("rate limited")
		}

		extractor := NewExtractor(mockLLM)
		_, err := extractor.ExtractFromExchange(context.Background(), "a", "b", "")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("parseFactsResponse", func() {
	It("unwraps JSON from markdown fences and prose", func() {
		response := "Here are the facts:\n```json\n" +
			`{"facts": [{"fact": "Has a dog named Rex", "category": "relationships", "confidence": 0.8, "evidence": "my dog Rex"}]}` +
			"\n```\nLet me know if you need more."

		facts, err := parseFactsResponse(response)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Statement).To(Equal("Has a dog named Rex"))
	})

	It("drops facts with unknown categories or empty statements", func() {
		response := `{"facts": [
			{"fact": "Valid one", "category": "preferences", "confidence": 0.9},
			{"fact": "Bad category", "category": "horoscope", "confidence": 0.9},
			{"fact": "", "category": "beliefs", "confidence": 0.9}
		]}`

		facts, err := parseFactsResponse(response)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Statement).To(Equal("Valid one"))
	})

	It("normalizes category case and clamps confidence", func() {
		response := `{"facts": [
			{"fact": "Overconfident", "category": "Beliefs", "confidence": 1.7},
			{"fact": "Underconfident", "category": "events", "confidence": -0.2}
		]}`

		facts, err := parseFactsResponse(response)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(2))
		Expect(facts[0].Category).To(Equal(CategoryBeliefs))
		Expect(facts[0].Confidence).To(Equal(1.0))
		Expect(facts[1].Confidence).To(Equal(0.0))
	})

	It("returns empty for an empty facts array", func() {
		facts, err := parseFactsResponse(`{"facts": []}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(BeEmpty())
	})

	It("errors on responses with no JSON object", func() {
		_, err := parseFactsResponse("I could not find any facts.")
		Expect(err).To(HaveOccurred())
	})
})
