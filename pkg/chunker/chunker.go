// Package chunker splits linearized conversations into overlapping text
// chunks at two independent granularities. Broad chunks carry enough
// surrounding context to answer "what were we talking about"; fine chunks
// pinpoint individual statements. Both layers are generated for every
// conversation and stored side by side, tagged so retrieval can tell them
// apart.
package chunker

import (
	"fmt"
	"strings"

	"github.com/keepsakeco/keepsake/pkg/export"
)

// Layer describes one chunking granularity.
type Layer struct {
	// Name tags emitted chunks, "broad" or "fine".
	Name string
	// MaxSize bounds the chunk body length in bytes, header excluded.
	MaxSize int
	// Overlap is how many trailing bytes of each chunk seed the next one.
	Overlap int
	// Substantial is the formatted length at which a message stops being
	// batched with its neighbors and is chunked on its own.
	Substantial int
}

var (
	// Broad targets contextual recall, roughly 1500 tokens per chunk.
	Broad = Layer{Name: "broad", MaxSize: 6000, Overlap: 1200, Substantial: 2000}
	// Fine targets pinpoint recall, roughly 125 tokens per chunk.
	Fine = Layer{Name: "fine", MaxSize: 500, Overlap: 100, Substantial: 300}
)

// Chunk is one bounded, overlap-linked slice of a conversation.
type Chunk struct {
	Title        string
	Layer        string
	Part         int // 1-based, local to its layer
	Content      string
	MessageCount int
}

// subChunkOverlapWords is the word-level overlap carried between the
// sub-chunks of a single oversized message.
const subChunkOverlapWords = 15

// ChunkConversation runs both layers over the messages and concatenates
// their outputs, broad first. An empty message list yields no chunks.
func ChunkConversation(messages []export.Message, title string) []Chunk {
	chunks := chunkLayer(messages, title, Broad)
	return append(chunks, chunkLayer(messages, title, Fine)...)
}

type formattedMsg struct {
	text   string
	length int
}

// formatMessage renders a message the way it appears inside chunk text.
func formatMessage(m export.Message) string {
	speaker := "AI"
	if m.Role == export.RoleUser {
		speaker = "User"
	}
	return speaker + ": " + m.Content
}

func chunkLayer(messages []export.Message, title string, layer Layer) []Chunk {
	if len(messages) == 0 {
		return nil
	}

	formatted := make([]formattedMsg, len(messages))
	for i, m := range messages {
		text := formatMessage(m)
		formatted[i] = formattedMsg{text: text, length: len(text)}
	}

	lc := &layerChunker{layer: layer, title: title}

	i := 0
	for i < len(formatted) {
		msg := formatted[i]

		if msg.length >= layer.Substantial {
			if msg.length > layer.MaxSize {
				lc.splitOversized(msg.text)
			} else {
				lc.emitSubstantial(msg.text)
			}
			i++
			continue
		}

		i = lc.accumulate(formatted, i)
	}

	// A conversation whose messages never completed either path still
	// produces one chunk covering everything.
	if len(lc.chunks) == 0 {
		texts := make([]string, len(formatted))
		for i, m := range formatted {
			texts[i] = m.text
		}
		return []Chunk{{
			Title:        title,
			Layer:        layer.Name,
			Part:         1,
			Content:      fmt.Sprintf("[Conversation: %s]\n%s", title, strings.Join(texts, "\n\n")),
			MessageCount: len(messages),
		}}
	}

	return lc.chunks
}

type layerChunker struct {
	layer  Layer
	title  string
	chunks []Chunk
	// overlap is the tail of the previous chunk's body, carried forward
	// so consecutive chunks share context.
	overlap string
}

func (c *layerChunker) emit(body string, msgCount int) {
	part := len(c.chunks) + 1
	header := fmt.Sprintf("[Conversation: %s] [Part %d]", c.title, part)
	c.chunks = append(c.chunks, Chunk{
		Title:        c.title,
		Layer:        c.layer.Name,
		Part:         part,
		Content:      header + "\n" + body,
		MessageCount: msgCount,
	})
}

// accumulate batches consecutive non-substantial messages starting at i
// into a single chunk and returns the index of the first unconsumed
// message.
func (c *layerChunker) accumulate(formatted []formattedMsg, i int) int {
	var accumulated []string
	if c.overlap != "" {
		accumulated = append(accumulated, c.overlap)
	}
	accLen := len(c.overlap)
	count := 0

	for i < len(formatted) {
		next := formatted[i]
		if next.length >= c.layer.Substantial {
			break
		}
		if accLen+next.length+2 > c.layer.MaxSize && count > 0 {
			break
		}
		accumulated = append(accumulated, next.text)
		accLen += next.length + 2
		count++
		i++
	}

	if count > 0 {
		full := strings.Join(accumulated, "\n\n")
		c.emit(full, count)
		c.overlap = tail(full, c.layer.Overlap)
	}

	return i
}

// emitSubstantial gives a large-but-fitting message its own chunk. The
// overlap seed is trimmed so the body never exceeds the layer's max size.
func (c *layerChunker) emitSubstantial(text string) {
	body := text
	if c.overlap != "" {
		if budget := c.layer.MaxSize - len(text) - 2; budget > 0 {
			body = tail(c.overlap, budget) + "\n\n" + text
		}
	}
	c.emit(body, 1)
	c.overlap = tail(text, c.layer.Overlap)
}

// splitOversized splits a message larger than the layer's max size into
// word-bounded sub-chunks. The message counts once toward message-count
// conservation: the first emitted sub-chunk carries it, the rest carry
// zero.
func (c *layerChunker) splitOversized(text string) {
	words := strings.Split(text, " ")

	sub := ""
	if c.overlap != "" {
		sub = c.overlap + "\n\n"
	}
	count := 1

	for _, word := range words {
		if len(sub)+len(word)+1 > c.layer.MaxSize && len(sub) > 0 {
			c.emit(strings.TrimSpace(sub), count)
			count = 0

			carried := strings.Split(sub, " ")
			if len(carried) > subChunkOverlapWords {
				carried = carried[len(carried)-subChunkOverlapWords:]
			}
			sub = strings.Join(carried, " ") + " "
		}
		sub += word + " "
	}

	if trimmed := strings.TrimSpace(sub); trimmed != "" {
		c.emit(trimmed, count)
		c.overlap = tail(trimmed, c.layer.Overlap)
	}
}

func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
