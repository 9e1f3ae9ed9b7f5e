package enroll

import (
	"github.com/spf13/cobra"

	"github.com/urbansound/soundscape/internal/app"
)

// Command creates the prototype enrollment command
func Command(ctx *app.Context) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "enroll [directory]",
		Short: "Build a prototype model from labelled examples",
		Long: `Build a prototype model from a directory holding one sub-directory per
label. Every audio file in a label directory becomes one prototype.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = ctx.Settings.Classifier.Prototypes
			}
			_, err := ctx.Enroll(cmd.Context(), args[0], out)
			return err
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Model file to write, .yaml or .json (default the configured prototypes file)")

	return cmd
}
