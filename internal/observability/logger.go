package observability

import "github.com/tphakala/soundbackend/internal/logger"

var log = logger.Global().Module("observability")
