// Package notification sends operator alerts through shoutrrr services
// (Telegram, ntfy, Slack and others) when an audio engine fails.
package notification

import (
	"context"
	"io"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"golang.org/x/time/rate"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/logger"
)

// DefaultMinInterval is the shortest gap between two alerts with the same key.
const DefaultMinInterval = time.Minute

// Sender delivers a message to every configured service.
// *router.ServiceRouter implements it.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier sends titled alerts, dropping repeats of the same key that
// arrive faster than the minimum interval.
type Notifier struct {
	sender      Sender
	title       string
	minInterval time.Duration
	log         logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a notifier for the shoutrrr service urls.
func New(urls []string, title string, timeout time.Duration) (*Notifier, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification url is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(slices.Clone(urls)...)
	if err != nil {
		// the raw error may echo tokens from the url
		return nil, errors.Newf("invalid notification url: %s", errors.Scrub(err.Error())).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return NewWithSender(sender, title), nil
}

// NewWithSender creates a notifier on top of an existing sender.
func NewWithSender(sender Sender, title string) *Notifier {
	return &Notifier{
		sender:      sender,
		title:       title,
		minInterval: DefaultMinInterval,
		log:         logger.Global().Module("notification"),
		limiters:    make(map[string]*rate.Limiter),
	}
}

// SetMinInterval changes the repeat interval. Zero disables rate limiting.
func (n *Notifier) SetMinInterval(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = d
	clear(n.limiters)
}

func (n *Notifier) allow(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.minInterval <= 0 {
		return true
	}
	l, ok := n.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(n.minInterval), 1)
		n.limiters[key] = l
	}
	return l.Allow()
}

// Notify sends message unless an alert with the same key went out less than
// the minimum interval ago. Suppressed alerts return nil.
func (n *Notifier) Notify(ctx context.Context, key, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !n.allow(key) {
		n.log.Debug("notification suppressed", logger.String("key", key))
		return nil
	}

	params := stypes.Params{}
	if n.title != "" {
		params.SetTitle(n.title)
	}
	for _, err := range n.sender.Send(message, &params) {
		if err != nil {
			return errors.Newf("notification delivery failed: %s", errors.Scrub(err.Error())).
				Component("notification").
				Category(errors.CategoryHTTP).
				Context("key", key).
				Build()
		}
	}
	n.log.Info("notification sent", logger.String("key", key))
	return nil
}
