package device

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestTerminal(t *testing.T) {
	n := neko.Modern(t)

	n.It("reads a line and zero fills the rest", func(t *testing.T) {
		var out bytes.Buffer

		var kbd Keyboard
		term := NewTerminal(&kbd, &out)

		kbd.Type("abcdef\n")

		buf := bytes.Repeat([]byte{0xFF}, 128)

		n, err := term.Read(context.Background(), buf)
		require.NoError(t, err)

		require.Equal(t, 7, n)
		require.Equal(t, "abcdef\n", string(buf[:7]))
		require.Equal(t, make([]byte, 121), buf[7:])
		require.Equal(t, "abcdef\n", out.String())
	})

	n.It("handles backspace within the line", func(t *testing.T) {
		var out bytes.Buffer

		var kbd Keyboard
		term := NewTerminal(&kbd, &out)

		kbd.Type("\bab\bc\r")

		buf := make([]byte, 16)

		n, err := term.Read(context.Background(), buf)
		require.NoError(t, err)

		require.Equal(t, 3, n)
		require.Equal(t, "ac\n", string(buf[:n]))
		require.Equal(t, "ab\b \bc\n", out.String())
	})

	n.It("keeps room for the terminator", func(t *testing.T) {
		var out bytes.Buffer

		var kbd Keyboard
		term := NewTerminal(&kbd, &out)

		kbd.Type("abcdef\n")

		buf := make([]byte, 4)

		n, err := term.Read(context.Background(), buf)
		require.NoError(t, err)

		require.Equal(t, 4, n)
		require.Equal(t, "abc\n", string(buf))
	})

	n.It("waits for keys to arrive", func(t *testing.T) {
		var out bytes.Buffer

		var kbd Keyboard
		term := NewTerminal(&kbd, &out)

		type result struct {
			n   int
			err error
		}

		done := make(chan result, 1)
		buf := make([]byte, 128)

		go func() {
			n, err := term.Read(context.Background(), buf)
			done <- result{n, err}
		}()

		kbd.Type("ls")
		kbd.Press(KeyEnter)

		select {
		case r := <-done:
			require.NoError(t, r.err)
			require.Equal(t, 3, r.n)
			require.Equal(t, "ls\n", string(buf[:3]))
		case <-time.After(5 * time.Second):
			t.Fatal("read never finished")
		}
	})

	n.It("gives up when the context is canceled", func(t *testing.T) {
		var out bytes.Buffer

		var kbd Keyboard
		term := NewTerminal(&kbd, &out)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := term.Read(ctx, make([]byte, 8))
		require.Equal(t, context.Canceled, err)
	})

	n.It("writes exactly the bytes given", func(t *testing.T) {
		var out bytes.Buffer

		term := NewTerminal(&Keyboard{}, &out)

		n, err := term.Write([]byte("hi\x00there"))
		require.NoError(t, err)

		require.Equal(t, 8, n)
		require.Equal(t, "hi\x00there", out.String())
	})

	n.Meow()
}
