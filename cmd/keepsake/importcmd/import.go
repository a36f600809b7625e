// Package importcmder provides the import command for ingesting exported
// chat archives into the memory store.
package importcmder

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/cmd/keepsake/bootstrap"
	"github.com/keepsakeco/keepsake/pkg/config"
	"github.com/keepsakeco/keepsake/pkg/logger"
)

const importLongDesc string = `Import an exported conversation archive.

Reads a ChatGPT-style export (a JSON array of conversation trees),
chunks every conversation at two granularities, embeds the chunks and
stores them in the configured memory backend.

Examples:
  keepsake import --user alice conversations.json
  keepsake import --user alice --quiet conversations.json`

const importShortDesc string = "Import an exported conversation archive"

type importCommander struct {
	userID    string
	quiet     bool
	debug     bool
	configDir string
}

func NewImportCmd() *cobra.Command {
	cmder := &importCommander{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: importShortDesc,
		Long:  importLongDesc,
		Args:  cobra.ExactArgs(1),
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
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User id to import memory for (required)")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Suppress progress output")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func (c *importCommander) run(cmd *cobra.Command, path string) error {
	log := logger.NewLogger(c.debug)
	defer log.Sync()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied import path
	if err != nil {
		return fmt.Errorf("reading export: %w", err)
	}

	components, err := bootstrap.Build(cmd.Context(), v, log)
	if err != nil {
		return err
	}
	defer components.Close()

	if !c.quiet {
		go c.printProgress(components)
	}

	report, err := components.Pipeline.Run(cmd.Context(), c.userID, data)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	log.Info("import complete",
		zap.String("user_id", c.userID),
		zap.Int("conversations", report.Conversations),
		zap.Int("chunks", report.Chunks),
		zap.Int("degraded", report.Degraded),
		zap.Int("skipped", report.Skipped),
	)

	fmt.Printf("Imported %d conversations (%d chunks", report.Conversations, report.Chunks)
	if report.Degraded > 0 {
		fmt.Printf(", %d without embeddings", report.Degraded)
	}
	fmt.Print(")")
	if report.Skipped > 0 {
		fmt.Printf(", skipped %d", report.Skipped)
	}
	fmt.Println()

	return nil
}

// printProgress polls the pipeline until the run's total is reached.
func (c *importCommander) printProgress(components *bootstrap.Components) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		done, total := components.Pipeline.Progress()
		if total == 0 {
			continue
		}
		fmt.Printf("  %d/%d conversations\n", done, total)
		if done >= total {
			return
		}
	}
}
