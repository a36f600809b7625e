// Package querycmder provides the query command for retrieving memory
// context from the CLI.
package querycmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keepsakeco/keepsake/cmd/keepsake/bootstrap"
	"github.com/keepsakeco/keepsake/pkg/config"
	"github.com/keepsakeco/keepsake/pkg/logger"
)

const queryLongDesc string = `Retrieve memory context for a query.

Runs the same retrieval the chat runtime uses: vector search over
conversation chunks and learned facts, with a keyword fallback when
embeddings are unavailable.

Examples:
  keepsake query --user alice "what do I do for work"
  keepsake query --user alice --chunks 10 "pottery"`

const queryShortDesc string = "Retrieve memory context for a query"

type queryCommander struct {
	userID    string
	maxChunks int
	debug     bool
	configDir string
}

func NewQueryCmd() *cobra.Command {
	cmder := &queryCommander{}

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: queryShortDesc,
		Long:  queryLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}
			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User id to query memory for (required)")
	cmd.Flags().IntVarP(&cmder.maxChunks, "chunks", "k", 0, "Maximum chunks to return")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func (c *queryCommander) run(cmd *cobra.Command, query string) error {
	log := logger.NewLogger(c.debug)
	defer log.Sync()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}

	components, err := bootstrap.Build(cmd.Context(), v, log)
	if err != nil {
		return err
	}
	defer components.Close()

	result, err := components.Retriever.Retrieve(cmd.Context(), c.userID, query, c.maxChunks)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	fmt.Printf("Method: %s\n", result.Method)

	if len(result.Facts) > 0 {
		fmt.Printf("\nFacts (%d):\n", len(result.Facts))
		for _, f := range result.Facts {
			fmt.Printf("  [%s] %s (%.2f)\n", f.Category, f.Statement, f.Similarity)
		}
	}

	if len(result.Chunks) > 0 {
		fmt.Printf("\nChunks (%d):\n", len(result.Chunks))
		for _, chunk := range result.Chunks {
			fmt.Printf("  %.3f  %s [%s, part %d]\n", chunk.Similarity, chunk.Title, chunk.Layer, chunk.Part)
		}
	}

	if result.Context != "" {
		fmt.Printf("\n--- context ---\n%s\n", result.Context)
	}

	return nil
}
