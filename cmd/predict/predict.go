package predict

import (
	"github.com/spf13/cobra"

	"github.com/urbansound/soundscape/internal/app"
)

// Command creates the whole-file prediction command
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "predict [input.wav|input.flac]",
		Short: "Assign a single label to a recording",
		Long:  "Classify the beginning of a recording as a whole and print the most likely labels.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.Predict(cmd.Context(), args[0])
			return err
		},
	}
}
