package device

import (
	"context"
	"sync"

	"github.com/evanphx/minikern/pkg/waiter"
)

const EventKey waiter.EventType = 2

const (
	KeyBackspace = '\b'
	KeyDelete    = 0x7F
	KeyEnter     = '\n'
	KeyReturn    = '\r'
)

// Keyboard queues translated keystrokes until the console consumes them.
type Keyboard struct {
	mu   sync.Mutex
	keys []byte

	w waiter.Waiter
}

func (k *Keyboard) Press(b byte) {
	k.mu.Lock()
	k.keys = append(k.keys, b)
	k.mu.Unlock()

	k.w.Notify(EventKey)
}

func (k *Keyboard) Type(s string) {
	k.mu.Lock()
	k.keys = append(k.keys, s...)
	k.mu.Unlock()

	k.w.Notify(EventKey)
}

// Pending is the number of queued keys.
func (k *Keyboard) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.keys)
}

func (k *Keyboard) pop() (byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.keys) == 0 {
		return 0, false
	}

	b := k.keys[0]
	k.keys = k.keys[1:]

	return b, true
}

// Get returns the next key, blocking until one is pressed.
func (k *Keyboard) Get(ctx context.Context) (byte, error) {
	if b, ok := k.pop(); ok {
		return b, nil
	}

	c := make(chan struct{}, 1)

	e := k.w.RegisterChannel(EventKey, c)
	defer k.w.Unregister(e)

	for {
		if b, ok := k.pop(); ok {
			return b, nil
		}

		select {
		case <-c:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
