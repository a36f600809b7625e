package api

import (
	"net/http"
	"sync"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/eventstream"
	"github.com/keepsakeco/keepsake/pkg/ingest"
	"github.com/keepsakeco/keepsake/pkg/learning"
	"github.com/keepsakeco/keepsake/pkg/memory"
	"github.com/keepsakeco/keepsake/pkg/retrieval"
)

// Deps are the wired components the server exposes over HTTP. MCP is
// optional; a nil handler leaves the /mcp route unmounted.
type Deps struct {
	Retriever *retrieval.Engine
	Learner   *learning.Learner
	Pipeline  *ingest.Pipeline
	Store     memory.Driver
	Events    eventstream.Publisher
	MCP       http.Handler
	Logger    *zap.Logger
}

// Server is the API server for the Keepsake memory system.
type Server struct {
	config Config
	deps   Deps
	logger *zap.Logger
	app    *fiber.App

	// importMu guards the single-import-at-a-time invariant and the last
	// finished report.
	importMu   sync.Mutex
	importing  bool
	lastReport *ingest.Report
	lastError  string
}

// NewServer creates a new API server. Components are injected to allow
// sharing with other surfaces (the CLI, the MCP server).
func NewServer(config Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/retrieve", s.handleRetrieve)
	app.Post("/v1/learn", s.handleLearn)
	app.Post("/v1/import", s.handleImport)
	app.Get("/v1/import/progress", s.handleImportProgress)
	app.Get("/v1/facts/:userID", s.handleFacts)
	app.Get("/v1/stats/:userID", s.handleStats)

	if deps.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(deps.MCP))
		app.All("/mcp/*", adaptor.HTTPHandler(deps.MCP))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
