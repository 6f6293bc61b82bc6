package device

import (
	"context"
	"io"
	"sync"

	"github.com/evanphx/minikern/log"
	hclog "github.com/hashicorp/go-hclog"
)

// LineMax is the size of the line buffer, terminator included.
const LineMax = 128

// Terminal is the console: keyboard input with a line discipline, output
// to a host writer.
type Terminal struct {
	L hclog.Logger

	mu  sync.Mutex
	kbd *Keyboard
	out io.Writer
}

func NewTerminal(kbd *Keyboard, out io.Writer) *Terminal {
	return &Terminal{
		L:   log.L.Named("terminal"),
		kbd: kbd,
		out: out,
	}
}

func (t *Terminal) Keyboard() *Keyboard {
	return t.kbd
}

func (t *Terminal) echo(b ...byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.out.Write(b)
}

// Read collects one line into buf. Characters are echoed, backspace removes
// the previous character of the current line and the line always ends with
// '\n'. The rest of the line buffer is zeroed. The returned count includes
// the terminator.
func (t *Terminal) Read(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	max := len(buf)
	if max > LineMax {
		max = LineMax
	}

	// room for the terminator
	limit := max - 1

	var i int

	for {
		b, err := t.kbd.Get(ctx)
		if err != nil {
			return 0, err
		}

		switch b {
		case KeyEnter, KeyReturn:
			t.echo('\n')

			buf[i] = '\n'
			i++

			for x := i; x < max; x++ {
				buf[x] = 0
			}

			t.L.Trace("line read", "bytes", i)

			return i, nil
		case KeyBackspace, KeyDelete:
			if i == 0 {
				continue
			}

			i--
			buf[i] = 0
			t.echo('\b', ' ', '\b')
		default:
			if i >= limit {
				continue
			}

			buf[i] = b
			i++
			t.echo(b)
		}
	}
}

// Write echoes exactly len(buf) bytes.
func (t *Terminal) Write(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.out.Write(buf)
	if err != nil {
		return 0, err
	}

	return len(buf), nil
}
