// Package servecmder provides the serve command for running the memory API server.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/api"
	"github.com/keepsakeco/keepsake/api/mcp"
	"github.com/keepsakeco/keepsake/cmd/keepsake/bootstrap"
	"github.com/keepsakeco/keepsake/pkg/config"
	"github.com/keepsakeco/keepsake/pkg/logger"
)

const serveLongDesc string = `Run the Keepsake memory API server.

The server exposes the retrieval, learning and import endpoints plus an
MCP surface mounted under /mcp for agent integrations.

Examples:
  keepsake serve
  keepsake serve --listen :9000
  keepsake serve --no-mcp`

const serveShortDesc string = "Run the memory API server"

type serveCommander struct {
	listen    string
	noMCP     bool
	debug     bool
	configDir string
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for the API server to listen on")
	cmd.Flags().Bool("no-mcp", false, "Disable the MCP surface")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	log := logger.NewLogger(c.debug)
	defer log.Sync()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}

	c.noMCP, err = cmd.Flags().GetBool("no-mcp")
	if err != nil {
		return fmt.Errorf("could not get no-mcp flag: %w", err)
	}

	listen := c.listen
	if listen == "" {
		listen = v.GetString("api.listen")
	}

	components, err := bootstrap.Build(cmd.Context(), v, log)
	if err != nil {
		return err
	}
	defer components.Close()

	deps := api.Deps{
		Retriever: components.Retriever,
		Learner:   components.Learner,
		Pipeline:  components.Pipeline,
		Store:     components.Store,
		Events:    components.Events,
		Logger:    log,
	}

	if !c.noMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Retriever: components.Retriever,
			Store:     components.Store,
			Logger:    log,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		deps.MCP = mcpServer.Handler()
	}

	server := api.NewServer(api.Config{ListenAddr: listen}, deps)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}
