// File: cmd/modes.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/answerbook/internal/answer"
)

func newModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List the presentation modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, _ := answer.ParseMode(configFrom(cmd).Answer.Mode)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODE\tALIAS\t")
			for _, m := range answer.Modes() {
				marker := ""
				if m == current {
					marker = "(configured)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m, m.Label(), marker)
			}
			return w.Flush()
		},
	}
}
