package export

import (
	"encoding/json"
	"fmt"
)

// ParseExport decodes a raw export payload into its conversation trees.
// The payload must be a JSON array of conversation objects; anything else
// is a hard error. Individual conversations with structural problems (no
// root, empty mapping) are not rejected here, callers decide whether to
// skip them after linearization.
func ParseExport(data []byte) ([]ConversationTree, error) {
	var trees []ConversationTree
	if err := json.Unmarshal(data, &trees); err != nil {
		return nil, fmt.Errorf("parsing export: %w", err)
	}

	// Some exporters omit the node ID inside the node object, keying it
	// only in the mapping. Backfill so traversal can rely on Node.ID.
	for i := range trees {
		for id, node := range trees[i].Mapping {
			if node.ID == "" {
				node.ID = id
				trees[i].Mapping[id] = node
			}
		}
	}

	return trees, nil
}
