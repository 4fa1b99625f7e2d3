//go:build !linux

package soundbackend

import "github.com/tphakala/soundbackend/internal/logger"

func raiseThreadPriority(logger.Logger) {}
