package directory

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/urbansound/soundscape/internal/app"
)

// Command creates a new cobra.Command for directory analysis.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory [path]",
		Short: "Analyze all audio files in a directory",
		Long:  "Provide a directory path to analyze all .wav and .flac files within it, one export per file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.AnalyzeDirectory(cmd.Context(), args[0], ctx.Settings.Analysis.Recursive)
			return err
		},
	}

	cmd.Flags().BoolP("recursive", "r", false, "Recursively analyze subdirectories")
	_ = viper.BindPFlag("analysis.recursive", cmd.Flags().Lookup("recursive"))

	return cmd
}
