package devices

import "github.com/tphakala/soundbackend/internal/logger"

// GetLogger returns the devices package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("devices")
}
