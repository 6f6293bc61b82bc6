package device

import (
	"context"
	"sync"

	"github.com/evanphx/minikern/log"
	"github.com/evanphx/minikern/pkg/waiter"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	MaxRate  = 1024
	MinRate  = 2
	OpenRate = 2
)

const EventTick waiter.EventType = 1

var ErrBadRate = errors.New("rate must be a power of two within range")

// TickDevice virtualizes a periodic interrupt source running at maxRate into
// a slower tick at the configured rate. Every caller sees the same rate; the
// last open or write wins.
type TickDevice struct {
	L hclog.Logger

	mu      sync.Mutex
	maxRate uint32
	rate    uint32
	counter uint32
	gen     uint64

	w waiter.Waiter
}

func NewTickDevice(maxRate uint32) *TickDevice {
	if maxRate == 0 {
		maxRate = MaxRate
	}

	return &TickDevice{
		L:       log.L.Named("rtc"),
		maxRate: maxRate,
		rate:    OpenRate,
	}
}

// ValidRate reports if rate is a power of two between MinRate and max.
func ValidRate(rate, max uint32) bool {
	return rate >= MinRate && rate <= max && rate&(rate-1) == 0
}

// Open resets the virtual rate and clears the interrupt counter.
func (t *TickDevice) Open() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rate = OpenRate
	t.counter = 0
}

func (t *TickDevice) SetRate(rate uint32) error {
	if !ValidRate(rate, t.maxRate) {
		return errors.Wrapf(ErrBadRate, "rate %d", rate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rate = rate

	t.L.Debug("set rate", "rate", rate)

	return nil
}

func (t *TickDevice) Rate() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.rate
}

func (t *TickDevice) MaxRate() uint32 {
	return t.maxRate
}

// Interrupt is called once per underlying tick at the maximum rate.
func (t *TickDevice) Interrupt() {
	t.mu.Lock()

	t.counter++

	hit := t.rate*t.counter >= t.maxRate
	if hit {
		t.counter -= t.maxRate / t.rate
		t.gen++
	}

	t.mu.Unlock()

	if hit {
		t.w.Notify(EventTick)
	}
}

// Arm returns the current tick generation. A later WaitFor with the
// returned value completes on the first tick after Arm.
func (t *TickDevice) Arm() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.gen
}

// Generation is the number of virtual ticks seen since creation.
func (t *TickDevice) Generation() uint64 {
	return t.Arm()
}

func (t *TickDevice) WaitFor(ctx context.Context, gen uint64) error {
	c := make(chan struct{}, 1)

	e := t.w.RegisterChannel(EventTick, c)
	defer t.w.Unregister(e)

	for {
		if t.Arm() != gen {
			return nil
		}

		select {
		case <-c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Wait blocks until the next virtual tick.
func (t *TickDevice) Wait(ctx context.Context) error {
	return t.WaitFor(ctx, t.Arm())
}
