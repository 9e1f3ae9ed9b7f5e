package detection

import (
	"sync"

	"github.com/urbansound/soundscape/internal/logger"
)

var (
	loggerOnce sync.Once
	pkgLogger  logger.Logger
)

// GetLogger returns the detection package logger
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("detection")
	})
	return pkgLogger
}
