package export_test

import (
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keepsakeco/keepsake/pkg/export"
)

func TestExport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Export Suite")
}

func textNode(id, parent, role, text string, ts float64, children ...string) export.Node {
	return export.Node{
		ID:     id,
		Parent: parent,
		Message: &export.RawMessage{
			ID:         id,
			Author:     export.Author{Role: role},
			Content:    export.RawContent{Parts: []json.RawMessage{json.RawMessage(`"` + text + `"`)}},
			CreateTime: ts,
		},
		Children: children,
	}
}

var _ = Describe("ParseExport", func() {
	It("decodes an array of conversations", func() {
		data := []byte(`[{"id":"c1","title":"First chat","mapping":{},"current_node":""}]`)

		trees, err := export.ParseExport(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(trees).To(HaveLen(1))
		Expect(trees[0].Title).To(Equal("First chat"))
	})

	It("backfills node IDs from mapping keys", func() {
		data := []byte(`[{"id":"c1","title":"t","mapping":{"n1":{"parent":"","children":[]}},"current_node":""}]`)

		trees, err := export.ParseExport(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(trees[0].Mapping["n1"].ID).To(Equal("n1"))
	})

	It("rejects payloads that are not a conversation array", func() {
		_, err := export.ParseExport([]byte(`{"oops": true}`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Linearize", func() {
	It("walks a linear chain in order", func() {
		tree := &export.ConversationTree{
			ID:    "c1",
			Title: "chain",
			Mapping: map[string]export.Node{
				"root": {ID: "root", Children: []string{"m1"}},
				"m1":   textNode("m1", "root", "user", "hello", 0, "m2"),
				"m2":   textNode("m2", "m1", "assistant", "hi there", 0),
			},
			CurrentNode: "m2",
		}

		msgs := export.Linearize(tree)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Role).To(Equal(export.RoleUser))
		Expect(msgs[0].Content).To(Equal("hello"))
		Expect(msgs[1].Role).To(Equal(export.RoleAssistant))
		Expect(msgs[1].Content).To(Equal("hi there"))
	})

	It("follows the current_node branch at a fork", func() {
		tree := &export.ConversationTree{
			Mapping: map[string]export.Node{
				"root": {ID: "root", Children: []string{"q"}},
				"q":    textNode("q", "root", "user", "question", 0, "a1", "a2"),
				"a1":   textNode("a1", "q", "assistant", "first draft", 0),
				"a2":   textNode("a2", "q", "assistant", "regenerated answer", 0),
			},
			CurrentNode: "a2",
		}

		msgs := export.Linearize(tree)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[1].Content).To(Equal("regenerated answer"))
	})

	It("takes the first child when no branch is preferred", func() {
		tree := &export.ConversationTree{
			Mapping: map[string]export.Node{
				"root": {ID: "root", Children: []string{"q"}},
				"q":    textNode("q", "root", "user", "question", 0, "a1", "a2"),
				"a1":   textNode("a1", "q", "assistant", "first draft", 0),
				"a2":   textNode("a2", "q", "assistant", "regenerated answer", 0),
			},
			CurrentNode: "",
		}

		msgs := export.Linearize(tree)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[1].Content).To(Equal("first draft"))
	})

	It("drops system and tool messages", func() {
		tree := &export.ConversationTree{
			Mapping: map[string]export.Node{
				"root": {ID: "root", Children: []string{"sys"}},
				"sys":  textNode("sys", "root", "system", "You are helpful.", 0, "m1"),
				"m1":   textNode("m1", "sys", "user", "hello", 0, "tool"),
				"tool": textNode("tool", "m1", "tool", "lookup result", 0, "m2"),
				"m2":   textNode("m2", "tool", "assistant", "answer", 0),
			},
			CurrentNode: "m2",
		}

		msgs := export.Linearize(tree)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Content).To(Equal("hello"))
		Expect(msgs[1].Content).To(Equal("answer"))
	})

	It("skips non-string content parts but keeps the text ones", func() {
		node := export.Node{
			ID:     "m1",
			Parent: "root",
			Message: &export.RawMessage{
				ID:     "m1",
				Author: export.Author{Role: "user"},
				Content: export.RawContent{Parts: []json.RawMessage{
					json.RawMessage(`"look at this"`),
					json.RawMessage(`{"asset_pointer":"file://img"}`),
					json.RawMessage(`"what is it?"`),
				}},
			},
		}
		tree := &export.ConversationTree{
			Mapping: map[string]export.Node{
				"root": {ID: "root", Children: []string{"m1"}},
				"m1":   node,
			},
		}

		msgs := export.Linearize(tree)
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Content).To(Equal("look at this\nwhat is it?"))
	})

	It("drops messages whose content is empty after extraction", func() {
		tree := &export.ConversationTree{
			Mapping: map[string]export.Node{
				"root": {ID: "root", Children: []string{"m1"}},
				"m1":   textNode("m1", "root", "user", "", 0, "m2"),
				"m2":   textNode("m2", "m1", "assistant", "real content", 0),
			},
			CurrentNode: "m2",
		}

		msgs := export.Linearize(tree)
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Content).To(Equal("real content"))
	})

	It("sorts by timestamp when every message has one", func() {
		tree := &export.ConversationTree{
			Mapping: map[string]export.Node{
				"root": {ID: "root", Children: []string{"m1"}},
				"m1":   textNode("m1", "root", "user", "second", 2000, "m2"),
				"m2":   textNode("m2", "m1", "assistant", "first", 1000),
			},
			CurrentNode: "m2",
		}

		msgs := export.Linearize(tree)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Content).To(Equal("first"))
		Expect(msgs[1].Content).To(Equal("second"))
	})

	It("keeps tree order when any timestamp is missing", func() {
		tree := &export.ConversationTree{
			Mapping: map[string]export.Node{
				"root": {ID: "root", Children: []string{"m1"}},
				"m1":   textNode("m1", "root", "user", "second", 2000, "m2"),
				"m2":   textNode("m2", "m1", "assistant", "first", 0),
			},
			CurrentNode: "m2",
		}

		msgs := export.Linearize(tree)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Content).To(Equal("second"))
		Expect(msgs[1].Content).To(Equal("first"))
	})

	It("returns nothing when the tree has no root", func() {
		tree := &export.ConversationTree{
			Mapping: map[string]export.Node{
				"a": textNode("a", "b", "user", "hello", 0, "b"),
				"b": textNode("b", "a", "assistant", "hi", 0, "a"),
			},
		}

		Expect(export.Linearize(tree)).To(BeEmpty())
	})

	It("returns nothing for an empty mapping", func() {
		Expect(export.Linearize(&export.ConversationTree{})).To(BeEmpty())
		Expect(export.Linearize(nil)).To(BeEmpty())
	})

	It("falls back to the text field when parts are absent", func() {
		tree := &export.ConversationTree{
			Mapping: map[string]export.Node{
				"root": {ID: "root", Children: []string{"m1"}},
				"m1": {
					ID:     "m1",
					Parent: "root",
					Message: &export.RawMessage{
						ID:      "m1",
						Author:  export.Author{Role: "user"},
						Content: export.RawContent{ContentType: "text", Text: "  plain text  "},
					},
				},
			},
		}

		msgs := export.Linearize(tree)
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Content).To(Equal("plain text"))
	})
})
