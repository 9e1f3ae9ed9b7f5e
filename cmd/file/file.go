package file

import (
	"github.com/spf13/cobra"

	"github.com/urbansound/soundscape/internal/app"
)

// Command creates a new file command for analyzing a single audio file.
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "file [input.wav|input.flac]",
		Short: "Analyze an audio file",
		Long:  `Analyze a single audio file for urban sound events and export the grouped events.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.AnalyzeFile(cmd.Context(), args[0])
			return err
		},
	}
}
