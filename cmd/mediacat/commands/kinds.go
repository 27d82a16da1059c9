package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/mediaflow/pkg/media"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List registered source kinds",
	Long: `List the source kinds available to cat and live.

The s3 and redis kinds appear only when the config file sets up their
clients.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range media.Kinds() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		for _, s := range state.cfg.Sources {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s:%s\n", s.Name, s.Kind, s.Location)
		}
		return nil
	},
}
