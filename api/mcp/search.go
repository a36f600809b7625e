package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/retrieval"
)

var (
	memorySearchToolName    = "memory_search"
	memorySearchDescription = "Search a user's long-term memory. Returns the most relevant conversation chunks and learned facts for the query, plus a pre-composed context text ready to splice into a prompt."
)

// MemorySearchInput represents the input arguments for the memory_search tool.
type MemorySearchInput struct {
	UserID    string `json:"user_id" jsonschema:"the id of the user whose memory to search"`
	Query     string `json:"query" jsonschema:"the search query text"`
	MaxChunks int    `json:"max_chunks,omitempty" jsonschema:"maximum conversation chunks to return (default: 5)"`
}

// MemoryChunk is one retrieved conversation chunk.
type MemoryChunk struct {
	Title   string  `json:"title"`
	Layer   string  `json:"layer"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// MemoryFact is one retrieved learned fact.
type MemoryFact struct {
	Category   string  `json:"category"`
	Statement  string  `json:"statement"`
	Confidence float64 `json:"confidence"`
}

// MemorySearchOutput represents the output of the memory_search tool.
type MemorySearchOutput struct {
	Query   string        `json:"query"`
	Method  string        `json:"method"`
	Context string        `json:"context"`
	Chunks  []MemoryChunk `json:"chunks"`
	Facts   []MemoryFact  `json:"facts"`
}

// handleMemorySearch processes a memory search request.
func (s *Server) handleMemorySearch(ctx context.Context, _ *mcp.CallToolRequest, input MemorySearchInput) (*mcp.CallToolResult, MemorySearchOutput, error) {
	logger := s.config.Logger

	if input.UserID == "" || input.Query == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "user_id and query are required"},
			},
		}, MemorySearchOutput{}, nil
	}

	logger.Debug("MCP memory search request",
		zap.String("user_id", input.UserID),
		zap.String("query", input.Query),
	)

	result, err := s.config.Retriever.Retrieve(ctx, input.UserID, input.Query, input.MaxChunks)
	if err != nil {
		logger.Error("failed to retrieve memory", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Memory search failed: %v", err)},
			},
		}, MemorySearchOutput{}, nil
	}

	output := buildSearchOutput(input.Query, result)

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, MemorySearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// buildSearchOutput converts a retrieval result into the tool's output shape.
func buildSearchOutput(query string, result *retrieval.Result) MemorySearchOutput {
	chunks := make([]MemoryChunk, len(result.Chunks))
	for i, c := range result.Chunks {
		chunks[i] = MemoryChunk{
			Title:   c.Title,
			Layer:   c.Layer,
			Content: c.Content,
			Score:   c.Similarity,
		}
	}

	facts := make([]MemoryFact, len(result.Facts))
	for i, f := range result.Facts {
		facts[i] = MemoryFact{
			Category:   f.Category,
			Statement:  f.Statement,
			Confidence: f.Confidence,
		}
	}

	return MemorySearchOutput{
		Query:   query,
		Method:  result.Method,
		Context: result.Context,
		Chunks:  chunks,
		Facts:   facts,
	}
}
