// Package conf loads soundscape settings from defaults, an optional YAML
// file, SOUNDSCAPE_* environment variables and command line flags.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g.
// SOUNDSCAPE_ANALYSIS_THRESHOLD.
const EnvPrefix = "SOUNDSCAPE"

// AnalysisSettings controls windowing, filtering and grouping
type AnalysisSettings struct {
	WindowSeconds     float64 // window length in seconds
	Overlap           float64 // fraction of overlap between windows, [0,1)
	Threshold         float64 // minimum window confidence kept for grouping
	GapThreshold      float64 // max seconds between same-label windows that still merge
	Workers           int     // parallel window workers, 1 = sequential
	SampleRate        int     // analysis sample rate, input is resampled to it
	MaxPredictSeconds float64 // audio considered by whole-file prediction
	Recursive         bool    // directory analysis descends into sub-directories
}

// FeatureSettings selects and tunes the feature extractor
type FeatureSettings struct {
	Type         string  // band or yamnet
	Bands        int     // log-spaced energy bands
	FrameSize    int     // FFT frame length in samples
	HopSize      int     // FFT hop in samples
	MinFreq      float64 // lowest band edge in Hz
	MaxFreq      float64 // highest band edge in Hz, 0 = Nyquist
	SilenceFloor float64 // RMS below which a window has no features
	ModelPath    string  // YAMNet model for the yamnet extractor
}

// ClassifierSettings selects and tunes the classifier
type ClassifierSettings struct {
	Type       string // prototype or tflite
	Prototypes string // prototype model file (yaml or json)
	K          int    // neighbours consulted by the prototype classifier
	ModelPath  string // TFLite classifier model
	LabelsPath string // label file for the TFLite classifier, one per line
	Threads    int    // TFLite interpreter threads, 0 = all cores
}

// SQLiteSettings configures the embedded run history database
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings configures a MySQL run history database
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// OutputSettings controls where results go
type OutputSettings struct {
	Path   string // export directory
	Format string // json, csv or table
	Clips  ClipSettings
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// ClipSettings controls writing each grouped event as its own WAV file
type ClipSettings struct {
	Enabled bool
	Path    string   // defaults to <output.path>/clips
	Labels  []string // only these labels, all when empty
}

// MQTTSettings configures publishing of export documents
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	Username string
	Password string
	ClientID string
	Retain   bool
}

// MetricsSettings configures the Prometheus textfile dump
type MetricsSettings struct {
	Enabled  bool
	TextFile string
}

// TelemetrySettings configures Sentry error reporting
type TelemetrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// Settings is the complete configuration
type Settings struct {
	Debug      bool
	Analysis   AnalysisSettings
	Features   FeatureSettings
	Classifier ClassifierSettings
	Output     OutputSettings
	MQTT       MQTTSettings
	Metrics    MetricsSettings
	Logging    logger.LoggingConfig
	Telemetry  TelemetrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into a new Settings and validates it. An
// explicit file set with viper.SetConfigFile must exist; otherwise a missing
// config.yaml in the search paths leaves the defaults in place.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults, search paths and environment overrides,
// then reads the config file if one is present.
func initViper() error {
	setDefaultConfig()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths lists the directories searched for config.yaml
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "soundscape"))
	}
	return paths
}

// Setting returns the last loaded settings, loading them on first use
func Setting() *Settings {
	settingsMutex.RLock()
	s := settingsInstance
	settingsMutex.RUnlock()
	if s != nil {
		return s
	}

	s, err := Load()
	if err != nil {
		GetLogger().Error("failed to load settings", logger.Error(err))
		return nil
	}
	return s
}
