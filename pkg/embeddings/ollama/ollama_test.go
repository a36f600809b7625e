package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keepsakeco/keepsake/pkg/embeddings"
	"github.com/keepsakeco/keepsake/pkg/embeddings/ollama"
)

func TestOllama(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ollama Embedder Suite")
}

var _ = Describe("Embedder", func() {
	var (
		server    *httptest.Server
		lastInput []string
	)

	// fake Ollama /api/embed endpoint that records the inputs it saw and
	// returns one fixed vector per input.
	BeforeEach(func() {
		lastInput = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Model string   `json:"model"`
				Input []string `json:"input"`
			}
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			lastInput = req.Input

			vectors := make([][]float32, len(req.Input))
			for i := range vectors {
				vectors[i] = []float32{0.1, 0.2, 0.3}
			}
			Expect(json.NewEncoder(w).Encode(map[string]any{
				"embeddings": vectors,
			})).To(Succeed())
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newEmbedder := func(model string) *ollama.Embedder {
		embedder, err := ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: server.URL,
			Model:   model,
		})
		Expect(err).NotTo(HaveOccurred())
		return embedder
	}

	It("prefixes nomic document batches with the document task", func() {
		embedder := newEmbedder("nomic-embed-text")

		vectors, err := embedder.EmbedBatch(context.Background(),
			[]string{"I work at Acme", "I have a cat"}, embeddings.PurposeDocument)
		Expect(err).NotTo(HaveOccurred())
		Expect(vectors).To(HaveLen(2))
		Expect(lastInput).To(Equal([]string{
			"search_document: I work at Acme",
			"search_document: I have a cat",
		}))
	})

	It("prefixes nomic query batches with the query task", func() {
		embedder := newEmbedder("nomic-embed-text")

		_, err := embedder.EmbedBatch(context.Background(),
			[]string{"where do I work"}, embeddings.PurposeQuery)
		Expect(err).NotTo(HaveOccurred())
		Expect(lastInput).To(Equal([]string{"search_query: where do I work"}))
	})

	It("embeds single texts as queries", func() {
		embedder := newEmbedder("nomic-embed-text")

		vector, err := embedder.Embed(context.Background(), "where do I work")
		Expect(err).NotTo(HaveOccurred())
		Expect(vector).To(Equal([]float32{0.1, 0.2, 0.3}))
		Expect(lastInput).To(Equal([]string{"search_query: where do I work"}))
	})

	It("leaves non-nomic model inputs untouched", func() {
		embedder := newEmbedder("all-minilm")

		_, err := embedder.EmbedBatch(context.Background(),
			[]string{"I work at Acme"}, embeddings.PurposeDocument)
		Expect(err).NotTo(HaveOccurred())
		Expect(lastInput).To(Equal([]string{"I work at Acme"}))
	})

	It("rejects responses with a count mismatch", func() {
		server.Close()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			Expect(json.NewEncoder(w).Encode(map[string]any{
				"embeddings": [][]float32{{0.1}},
			})).To(Succeed())
		}))
		embedder := newEmbedder("all-minilm")

		_, err := embedder.EmbedBatch(context.Background(),
			[]string{"one", "two"}, embeddings.PurposeDocument)
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})
})
