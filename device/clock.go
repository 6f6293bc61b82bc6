package device

import (
	"context"
	"time"

	"github.com/evanphx/minikern/log"
	hclog "github.com/hashicorp/go-hclog"
)

type Interrupter interface {
	Interrupt()
}

// Clock drives interrupt handlers from a host ticker, standing in for the
// periodic interrupt line.
type Clock struct {
	L        hclog.Logger
	Interval time.Duration

	handlers []Interrupter
}

func NewClock(interval time.Duration, handlers ...Interrupter) *Clock {
	if interval <= 0 {
		interval = time.Second / MaxRate
	}

	return &Clock{
		L:        log.L.Named("clock"),
		Interval: interval,
		handlers: handlers,
	}
}

// Run delivers interrupts until ctx is done.
func (c *Clock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	c.L.Debug("clock started", "interval", c.Interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, h := range c.handlers {
				h.Interrupt()
			}
		}
	}
}
