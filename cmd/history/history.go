package history

import (
	"github.com/spf13/cobra"

	"github.com/urbansound/soundscape/internal/app"
)

// Command creates the run history command
func Command(ctx *app.Context) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent analysis runs",
		Long:  "List recent analysis runs and per-label totals from the configured database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.History(cmd.Context(), limit)
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show, 0 for all")

	return cmd
}
