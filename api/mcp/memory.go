package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	factRecallToolName    = "fact_recall"
	factRecallDescription = "Recall the newest learned facts about a user. Use this to load persistent knowledge (preferences, relationships, milestones) without running a search."
)

// FactRecallInput represents the input arguments for the fact_recall tool.
type FactRecallInput struct {
	UserID string `json:"user_id" jsonschema:"the id of the user whose facts to recall"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum facts to return (default: 50)"`
}

// FactRecallOutput represents the structured output of a fact recall.
type FactRecallOutput struct {
	Facts []MemoryFact `json:"facts"`
}

// handleFactRecall processes a fact recall request via MCP.
func (s *Server) handleFactRecall(ctx context.Context, _ *mcp.CallToolRequest, input FactRecallInput) (*mcp.CallToolResult, FactRecallOutput, error) {
	if input.UserID == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "user_id is required"},
			},
		}, FactRecallOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	records, err := s.config.Store.RecentFacts(ctx, input.UserID, limit)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Fact recall failed: %v", err)},
			},
		}, FactRecallOutput{}, nil
	}

	facts := make([]MemoryFact, len(records))
	for i, f := range records {
		facts[i] = MemoryFact{
			Category:   f.Category,
			Statement:  f.Statement,
			Confidence: f.Confidence,
		}
	}

	output := FactRecallOutput{Facts: facts}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, FactRecallOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
