// Package keepsakecmder
package keepsakecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/keepsakeco/keepsake/cmd/keepsake/config"
	importcmder "github.com/keepsakeco/keepsake/cmd/keepsake/importcmd"
	learncmder "github.com/keepsakeco/keepsake/cmd/keepsake/learn"
	querycmder "github.com/keepsakeco/keepsake/cmd/keepsake/query"
	servecmder "github.com/keepsakeco/keepsake/cmd/keepsake/serve"
	versioncmder "github.com/keepsakeco/keepsake/cmd/version"
)

const keepsakeLongDesc string = `Keepsake is the long-term memory layer for your AI companion.

Import exported chat history, then query it at chat time:
  keepsake serve               Run the memory API server
  keepsake import <file>       Import an exported conversation archive
  keepsake query <text>        Retrieve memory context for a query
  keepsake learn               Learn facts from a chat exchange`

const keepsakeShortDesc string = "Keepsake - Companion Memory"

func NewKeepsakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keepsake",
		Short: keepsakeShortDesc,
		Long:  keepsakeLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Path to the .keepsake/ config directory (default: walk up from cwd)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(importcmder.NewImportCmd())
	cmd.AddCommand(querycmder.NewQueryCmd())
	cmd.AddCommand(learncmder.NewLearnCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
