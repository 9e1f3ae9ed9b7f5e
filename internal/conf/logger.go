package conf

import "github.com/urbansound/soundscape/internal/logger"

// GetLogger returns the config module logger. It is resolved on each call
// since the central logger is installed only after settings are loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
