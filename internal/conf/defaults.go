package conf

import "github.com/spf13/viper"

// Analysis defaults. The windowing and grouping values mirror what the
// detector and grouper fall back to when used as a library.
const (
	DefaultWindowSeconds     = 2.0
	DefaultOverlap           = 0.5
	DefaultThreshold         = 0.4
	DefaultGapThreshold      = 0.5
	DefaultSampleRate        = 16000
	DefaultMaxPredictSeconds = 30.0
	DefaultOutputPath        = "datos_exportados"

	// YAMNetSampleRate is the only analysis rate the yamnet extractor accepts
	YAMNetSampleRate = 16000
)

// setDefaultConfig registers every key so env overrides and Unmarshal see it
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("analysis.windowseconds", DefaultWindowSeconds)
	viper.SetDefault("analysis.overlap", DefaultOverlap)
	viper.SetDefault("analysis.threshold", DefaultThreshold)
	viper.SetDefault("analysis.gapthreshold", DefaultGapThreshold)
	viper.SetDefault("analysis.workers", 1)
	viper.SetDefault("analysis.samplerate", DefaultSampleRate)
	viper.SetDefault("analysis.maxpredictseconds", DefaultMaxPredictSeconds)
	viper.SetDefault("analysis.recursive", false)

	viper.SetDefault("features.type", "band")
	viper.SetDefault("features.bands", 32)
	viper.SetDefault("features.framesize", 1024)
	viper.SetDefault("features.hopsize", 512)
	viper.SetDefault("features.minfreq", 50.0)
	viper.SetDefault("features.maxfreq", 0.0)
	viper.SetDefault("features.silencefloor", 1e-4)
	viper.SetDefault("features.modelpath", "")

	viper.SetDefault("classifier.type", "prototype")
	viper.SetDefault("classifier.prototypes", "prototypes.yaml")
	viper.SetDefault("classifier.k", 5)
	viper.SetDefault("classifier.modelpath", "")
	viper.SetDefault("classifier.labelspath", "")
	viper.SetDefault("classifier.threads", 0)

	viper.SetDefault("output.path", DefaultOutputPath)
	viper.SetDefault("output.format", "json")
	viper.SetDefault("output.clips.enabled", false)
	viper.SetDefault("output.clips.path", "")
	viper.SetDefault("output.clips.labels", []string{})
	viper.SetDefault("output.sqlite.enabled", false)
	viper.SetDefault("output.sqlite.path", "soundscape.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "soundscape")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "soundscape/detections")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.clientid", "soundscape")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.textfile", "soundscape.prom")

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/soundscape.log")
	viper.SetDefault("logging.fileoutput.level", "debug")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
	viper.SetDefault("telemetry.environment", "production")
}
