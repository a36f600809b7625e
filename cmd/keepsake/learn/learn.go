// Package learncmder provides the learn command for extracting facts
// from a chat exchange.
package learncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keepsakeco/keepsake/cmd/keepsake/bootstrap"
	"github.com/keepsakeco/keepsake/pkg/config"
	"github.com/keepsakeco/keepsake/pkg/logger"
)

const learnLongDesc string = `Learn durable facts from one chat exchange.

Runs the extraction LLM over a (user message, assistant reply) pair,
keeps the confident facts and stores them with embeddings.

Examples:
  keepsake learn --user alice \
    --message "I just started a new job at Acme" \
    --reply "Congratulations on the new role!"`

const learnShortDesc string = "Learn facts from a chat exchange"

type learnCommander struct {
	userID    string
	message   string
	reply     string
	debug     bool
	configDir string
}

func NewLearnCmd() *cobra.Command {
	cmder := &learnCommander{}

	cmd := &cobra.Command{
		Use:   "learn",
		Short: learnShortDesc,
		Long:  learnLongDesc,
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

	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User id to learn facts for (required)")
	cmd.Flags().StringVarP(&cmder.message, "message", "m", "", "The user's chat message (required)")
	cmd.Flags().StringVarP(&cmder.reply, "reply", "r", "", "The assistant's reply (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("message")
	_ = cmd.MarkFlagRequired("reply")

	return cmd
}

func (c *learnCommander) run(cmd *cobra.Command) error {
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

	count, err := components.Learner.Learn(cmd.Context(), c.userID, c.message, c.reply, "")
	if err != nil {
		return fmt.Errorf("learning failed: %w", err)
	}

	if count == 0 {
		fmt.Println("No new facts learned")
		return nil
	}

	fmt.Printf("Learned %d new fact(s)\n", count)
	return nil
}
