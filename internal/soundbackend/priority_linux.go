//go:build linux

package soundbackend

import (
	"golang.org/x/sys/unix"

	"github.com/tphakala/soundbackend/internal/logger"
)

// audioThreadNice is the nice value requested for audio worker threads.
const audioThreadNice = -19

// raiseThreadPriority lowers the nice value of the calling OS thread. The
// caller must hold runtime.LockOSThread. Without CAP_SYS_NICE this fails and
// the worker runs at normal priority.
func raiseThreadPriority(log logger.Logger) {
	if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), audioThreadNice); err != nil {
		log.Debug("could not raise audio thread priority",
			logger.Int("nice", audioThreadNice),
			logger.Error(err))
	}
}
