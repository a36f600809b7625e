package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/eventstream"
	"github.com/keepsakeco/keepsake/pkg/memory"
	"github.com/keepsakeco/keepsake/pkg/retrieval"
)

// ErrorResponse is the JSON error body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RetrieveRequest asks for memory context for one chat query.
type RetrieveRequest struct {
	UserID    string `json:"user_id"`
	Query     string `json:"query"`
	MaxChunks int    `json:"max_chunks,omitempty"`
}

// RetrieveResponse carries ranked memory plus the pre-composed context
// text, ready to splice into a prompt.
type RetrieveResponse struct {
	Method  string        `json:"method"`
	Context string        `json:"context"`
	Chunks  []ChunkResult `json:"chunks"`
	Facts   []FactResult  `json:"facts"`
}

// ChunkResult is one retrieved conversation chunk.
type ChunkResult struct {
	Title      string    `json:"title"`
	Layer      string    `json:"layer"`
	Part       int       `json:"part"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// FactResult is one retrieved learned fact.
type FactResult struct {
	Category   string    `json:"category"`
	Statement  string    `json:"statement"`
	Confidence float64   `json:"confidence"`
	Similarity float64   `json:"similarity,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// LearnRequest submits one chat exchange for fact learning.
type LearnRequest struct {
	UserID            string `json:"user_id"`
	UserMessage       string `json:"user_message"`
	AssistantResponse string `json:"assistant_response"`
	SourceMessageID   string `json:"source_message_id,omitempty"`
}

// LearnResponse reports how many facts the exchange yielded.
type LearnResponse struct {
	FactsLearned int `json:"facts_learned"`
}

// ImportProgressResponse is the polling view of the current or last
// import run.
type ImportProgressResponse struct {
	Running bool   `json:"running"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Error   string `json:"error,omitempty"`

	Conversations int `json:"conversations,omitempty"`
	Chunks        int `json:"chunks,omitempty"`
	Degraded      int `json:"degraded,omitempty"`
	Skipped       int `json:"skipped,omitempty"`
}

// StatsResponse summarizes a user's stored memory.
type StatsResponse struct {
	UserID string `json:"user_id"`
	Chunks int    `json:"chunks"`
	Facts  int    `json:"facts"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleRetrieve returns ranked memory context for a chat query.
func (s *Server) handleRetrieve(c *fiber.Ctx) error {
	var req RetrieveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.UserID == "" || req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user_id and query are required"})
	}

	result, err := s.deps.Retriever.Retrieve(c.Context(), req.UserID, req.Query, req.MaxChunks)
	if err != nil {
		s.logger.Error("retrieval failed", zap.String("user_id", req.UserID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "retrieval failed"})
	}

	return c.JSON(buildRetrieveResponse(result))
}

// handleLearn runs fact learning over one exchange.
func (s *Server) handleLearn(c *fiber.Ctx) error {
	var req LearnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.UserID == "" || req.UserMessage == "" || req.AssistantResponse == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "user_id, user_message and assistant_response are required",
		})
	}

	count, err := s.deps.Learner.Learn(c.Context(), req.UserID, req.UserMessage, req.AssistantResponse, req.SourceMessageID)
	if err != nil {
		s.logger.Error("learning failed", zap.String("user_id", req.UserID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "learning failed"})
	}

	if count > 0 {
		s.publish(eventstream.NewFactLearned(req.UserID, eventstream.LearnedPayload{
			Facts:           count,
			SourceMessageID: req.SourceMessageID,
		}))
	}

	return c.JSON(LearnResponse{FactsLearned: count})
}

// handleImport starts a background import of a raw export payload. One
// import runs at a time; progress is polled via /v1/import/progress.
func (s *Server) handleImport(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user_id query parameter required"})
	}
	if len(c.Body()) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "export payload required"})
	}

	s.importMu.Lock()
	if s.importing {
		s.importMu.Unlock()
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "an import is already running"})
	}
	s.importing = true
	s.lastReport = nil
	s.lastError = ""
	s.importMu.Unlock()

	// Fiber reuses the request buffer after the handler returns.
	payload := make([]byte, len(c.Body()))
	copy(payload, c.Body())

	go s.runImport(userID, payload)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}

// runImport executes the pipeline outside the request lifecycle.
func (s *Server) runImport(userID string, payload []byte) {
	report, err := s.deps.Pipeline.Run(context.Background(), userID, payload)

	s.importMu.Lock()
	s.importing = false
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastReport = &report
	}
	s.importMu.Unlock()

	if err != nil {
		s.logger.Error("import failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	s.publish(eventstream.NewMemoryIngested(userID, eventstream.IngestedPayload{
		Conversations: report.Conversations,
		Chunks:        report.Chunks,
		Degraded:      report.Degraded,
		Skipped:       report.Skipped,
	}))
}

// handleImportProgress reports the state of the current or last import.
func (s *Server) handleImportProgress(c *fiber.Ctx) error {
	done, total := s.deps.Pipeline.Progress()

	s.importMu.Lock()
	resp := ImportProgressResponse{
		Running: s.importing,
		Done:    done,
		Total:   total,
		Error:   s.lastError,
	}
	if s.lastReport != nil {
		resp.Conversations = s.lastReport.Conversations
		resp.Chunks = s.lastReport.Chunks
		resp.Degraded = s.lastReport.Degraded
		resp.Skipped = s.lastReport.Skipped
	}
	s.importMu.Unlock()

	return c.JSON(resp)
}

// handleFacts returns a user's newest active facts.
func (s *Server) handleFacts(c *fiber.Ctx) error {
	userID := c.Params("userID")
	limit := c.QueryInt("limit", 50)

	facts, err := s.deps.Store.RecentFacts(c.Context(), userID, limit)
	if err != nil {
		s.logger.Error("listing facts failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "listing facts failed"})
	}

	results := make([]FactResult, len(facts))
	for i, f := range facts {
		results[i] = factResult(f, 0)
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"count":   len(results),
		"facts":   results,
	})
}

// handleStats returns chunk and fact counts for a user.
func (s *Server) handleStats(c *fiber.Ctx) error {
	userID := c.Params("userID")

	stats, err := s.deps.Store.Stats(c.Context(), userID)
	if err != nil {
		s.logger.Error("stats failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "stats failed"})
	}

	return c.JSON(StatsResponse{
		UserID: userID,
		Chunks: stats.Chunks,
		Facts:  stats.Facts,
	})
}

// publish sends an event, logging instead of failing: events are
// advisory, never part of the request contract.
func (s *Server) publish(event *eventstream.Event) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(context.Background(), event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func buildRetrieveResponse(result *retrieval.Result) RetrieveResponse {
	chunks := make([]ChunkResult, len(result.Chunks))
	for i, c := range result.Chunks {
		chunks[i] = ChunkResult{
			Title:      c.Title,
			Layer:      c.Layer,
			Part:       c.Part,
			Content:    c.Content,
			Similarity: c.Similarity,
			CreatedAt:  c.CreatedAt,
		}
	}

	facts := make([]FactResult, len(result.Facts))
	for i, f := range result.Facts {
		facts[i] = factResult(f.FactRecord, f.Similarity)
	}

	return RetrieveResponse{
		Method:  result.Method,
		Context: result.Context,
		Chunks:  chunks,
		Facts:   facts,
	}
}

func factResult(f memory.FactRecord, similarity float64) FactResult {
	return FactResult{
		Category:   f.Category,
		Statement:  f.Statement,
		Confidence: f.Confidence,
		Similarity: similarity,
		CreatedAt:  f.CreatedAt,
	}
}
