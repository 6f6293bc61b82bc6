package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestConfig(t *testing.T) {
	n := neko.Modern(t)

	n.It("has usable defaults", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.Validate())
		require.Equal(t, "shell", cfg.BaseProgram)
		require.Equal(t, time.Second/1024, cfg.Interval())
	})

	n.It("loads toml over the defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kern.toml")
		err := os.WriteFile(path, []byte(`
image = "fsdir.img"
max_processes = 3
tick_interval = "2ms"
`), 0644)
		require.NoError(t, err)

		cfg, err := Load(path)
		require.NoError(t, err)

		require.Equal(t, "fsdir.img", cfg.Image)
		require.Equal(t, 3, cfg.MaxProcesses)
		require.Equal(t, "shell", cfg.BaseProgram)
		require.Equal(t, 2*time.Millisecond, cfg.Interval())
	})

	n.It("rejects a slot count above the ceiling", func(t *testing.T) {
		cfg := Default()
		cfg.MaxProcesses = MaxSlots + 1

		err := cfg.Validate()
		require.Equal(t, ErrBadMaxProcesses, errors.Cause(err))
	})

	n.It("rejects a tick rate that is not a power of two", func(t *testing.T) {
		cfg := Default()
		cfg.TickMaxRate = 1000

		err := cfg.Validate()
		require.Equal(t, ErrBadTickRate, errors.Cause(err))
	})

	n.Meow()
}
