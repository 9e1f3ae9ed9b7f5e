package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/urbansound/soundscape/cmd/directory"
	"github.com/urbansound/soundscape/cmd/enroll"
	"github.com/urbansound/soundscape/cmd/file"
	"github.com/urbansound/soundscape/cmd/history"
	"github.com/urbansound/soundscape/cmd/predict"
	"github.com/urbansound/soundscape/internal/app"
	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "soundscape",
		Short:         "Urban soundscape event detection",
		Long:          "Detects and groups urban sound events in recordings and exports them as JSON.",
		Version:       ctx.Build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &cfgFile); err != nil {
		panic(err) // flag names are static
	}

	rootCmd.AddCommand(
		file.Command(ctx),
		directory.Command(ctx),
		predict.Command(ctx),
		enroll.Command(ctx),
		history.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(ctx, cfgFile)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return ctx.Finish()
	}

	return rootCmd
}

// initialize loads settings and sets up logging and error reporting before
// any sub-command runs.
func initialize(ctx *app.Context, cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	settings, err := conf.Load()
	if err != nil {
		return err
	}

	closeLogs, err := app.SetupLogging(settings)
	if err != nil {
		return err
	}
	ctx.OnClose(func() { _ = closeLogs() })

	if err := ctx.Init(settings); err != nil {
		return err
	}

	flush, err := ctx.SetupTelemetry()
	if err != nil {
		return err
	}
	ctx.OnClose(flush)

	logger.Global().Module("main").Debug("settings loaded",
		logger.String("version", ctx.Build.Version),
		logger.String("config", viper.ConfigFileUsed()))
	return nil
}

// flagKeys maps persistent flags to their configuration keys
var flagKeys = map[string]string{
	"debug":      "debug",
	"window":     "analysis.windowseconds",
	"overlap":    "analysis.overlap",
	"threshold":  "analysis.threshold",
	"gap":        "analysis.gapthreshold",
	"workers":    "analysis.workers",
	"prototypes": "classifier.prototypes",
	"output":     "output.path",
	"format":     "output.format",
	"clips":      "output.clips.enabled",
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, cfgFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(cfgFile, "config", "c", "", "Path to a config file (default ./config.yaml)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.Float64P("window", "w", conf.DefaultWindowSeconds, "Analysis window length in seconds")
	flags.Float64("overlap", conf.DefaultOverlap, "Fraction of overlap between windows, at least 0 and below 1")
	flags.Float64P("threshold", "t", conf.DefaultThreshold, "Minimum window confidence kept for grouping, 0.0 to 1.0")
	flags.Float64("gap", conf.DefaultGapThreshold, "Maximum gap in seconds between windows merged into one event")
	flags.Int("workers", 1, "Number of parallel window workers")
	flags.String("prototypes", "prototypes.yaml", "Prototype model file for the prototype classifier")
	flags.String("output", conf.DefaultOutputPath, "Export directory")
	flags.StringP("format", "f", "json", "Output format: json, csv, table")
	flags.Bool("clips", false, "Also write every detected event as a WAV clip")

	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
