package conf

import (
	"fmt"
	"slices"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings checks every section and reports all problems at once
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateAnalysisSettings(&settings.Analysis)...)
	ve.Errors = append(ve.Errors, validateFeatureSettings(&settings.Features)...)
	ve.Errors = append(ve.Errors, validateClassifierSettings(&settings.Classifier)...)
	ve.Errors = append(ve.Errors, validateOutputSettings(&settings.Output)...)
	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.MQTT)...)

	if settings.Features.Type == "yamnet" && settings.Analysis.SampleRate != YAMNetSampleRate {
		ve.Errors = append(ve.Errors, fmt.Sprintf("yamnet features need analysis.samplerate %d, got %d",
			YAMNetSampleRate, settings.Analysis.SampleRate))
	}

	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry is enabled but no DSN is set")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAnalysisSettings(s *AnalysisSettings) []string {
	var errs []string

	if s.WindowSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("analysis window must be positive, got %g", s.WindowSeconds))
	}
	if s.Overlap < 0 || s.Overlap >= 1 {
		errs = append(errs, fmt.Sprintf("analysis overlap must be in [0,1), got %g", s.Overlap))
	}
	if s.Threshold < 0 || s.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("confidence threshold must be in [0,1], got %g", s.Threshold))
	}
	if s.GapThreshold < 0 {
		errs = append(errs, fmt.Sprintf("gap threshold cannot be negative, got %g", s.GapThreshold))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Sprintf("workers must be at least 1, got %d", s.Workers))
	}
	if s.SampleRate <= 0 {
		errs = append(errs, fmt.Sprintf("sample rate must be positive, got %d", s.SampleRate))
	}
	if s.MaxPredictSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("prediction span must be positive, got %g", s.MaxPredictSeconds))
	}

	return errs
}

func validateFeatureSettings(s *FeatureSettings) []string {
	var errs []string

	switch s.Type {
	case "band":
		if s.Bands < 1 {
			errs = append(errs, "feature bands must be at least 1")
		}
		if s.FrameSize < 2 || s.FrameSize&(s.FrameSize-1) != 0 {
			errs = append(errs, fmt.Sprintf("feature frame size must be a power of two, got %d", s.FrameSize))
		}
		if s.HopSize < 1 {
			errs = append(errs, "feature hop size must be at least 1")
		}
		if s.MaxFreq != 0 && s.MaxFreq <= s.MinFreq {
			errs = append(errs, "feature maxfreq must be above minfreq")
		}
	case "yamnet":
		if s.ModelPath == "" {
			errs = append(errs, "yamnet features require features.modelpath")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown feature extractor %q", s.Type))
	}

	if s.SilenceFloor < 0 {
		errs = append(errs, "silence floor cannot be negative")
	}

	return errs
}

func validateClassifierSettings(s *ClassifierSettings) []string {
	var errs []string

	switch s.Type {
	case "prototype":
		if s.K < 1 {
			errs = append(errs, fmt.Sprintf("classifier k must be at least 1, got %d", s.K))
		}
	case "tflite":
		if s.ModelPath == "" {
			errs = append(errs, "tflite classifier requires classifier.modelpath")
		}
		if s.LabelsPath == "" {
			errs = append(errs, "tflite classifier requires classifier.labelspath")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown classifier %q", s.Type))
	}
	if s.Threads < 0 {
		errs = append(errs, "classifier threads cannot be negative")
	}

	return errs
}

func validateOutputSettings(s *OutputSettings) []string {
	var errs []string

	if !slices.Contains([]string{"json", "csv", "table"}, s.Format) {
		errs = append(errs, fmt.Sprintf("unknown output format %q", s.Format))
	}
	if s.SQLite.Enabled && s.MySQL.Enabled {
		errs = append(errs, "only one of output.sqlite and output.mysql can be enabled")
	}
	if s.SQLite.Enabled && s.SQLite.Path == "" {
		errs = append(errs, "sqlite output requires a path")
	}
	if s.MySQL.Enabled && (s.MySQL.Host == "" || s.MySQL.Database == "") {
		errs = append(errs, "mysql output requires host and database")
	}

	return errs
}

func validateMQTTSettings(s *MQTTSettings) []string {
	if !s.Enabled {
		return nil
	}

	var errs []string
	if s.Broker == "" {
		errs = append(errs, "mqtt is enabled but no broker is set")
	}
	if s.Topic == "" {
		errs = append(errs, "mqtt is enabled but no topic is set")
	}
	return errs
}
