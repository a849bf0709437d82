package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrsinham/dicombatch/cmd/dicombatch/wizard"
	"github.com/mrsinham/dicombatch/internal/config"
)

func newWizardCommand(ctx *commandContext) *cobra.Command {
	var command, save string

	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Build a configuration file interactively",
		Long: `Wizard asks for the settings of the convert or sort command and saves
them to a YAML or TOML file usable with --config.

With --config the wizard starts from that file and offers to overwrite it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch command {
			case wizard.CommandConvert, wizard.CommandSort:
			default:
				return fmt.Errorf("%w: --command must be convert or sort, got %q", config.ErrInvalid, command)
			}

			path, err := wizard.Run(strings.TrimSpace(ctx.configFlag), command, save)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled, nothing written")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&command, "command", wizard.CommandConvert, "Command to configure: convert or sort")
	cmd.Flags().StringVar(&save, "save", "", "Destination file (default dicombatch.yaml, or the --config file)")
	return cmd
}
