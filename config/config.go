// Package config holds the boot-time settings of the kernel.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// MaxSlots is the hard ceiling on process slots. Each slot owns one 4 MiB
// physical frame and one 8 KiB kernel stack below the 8 MiB mark.
const MaxSlots = 6

var (
	ErrBadMaxProcesses = errors.New("max_processes out of range")
	ErrBadTickRate     = errors.New("tick_max_rate must be a power of two")
	ErrNoBaseProgram   = errors.New("base_program is required")
)

type Config struct {
	// Image is the path of the boot filesystem image. Empty means the
	// built-in program image.
	Image string `toml:"image"`

	// BaseProgram is executed at boot and again whenever it halts.
	BaseProgram string `toml:"base_program"`

	MaxProcesses int `toml:"max_processes"`

	// TickMaxRate is the rate of the underlying periodic interrupt, in Hz.
	TickMaxRate int `toml:"tick_max_rate"`

	// TickInterval overrides the host interval between underlying
	// interrupts. Zero derives it from TickMaxRate.
	TickInterval Duration `toml:"tick_interval"`

	LogLevel string `toml:"log_level"`
}

// Duration is a time.Duration that reads as a TOML string like "1ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return errors.Wrapf(err, "bad duration %q", string(b))
	}

	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func Default() Config {
	return Config{
		BaseProgram:  "shell",
		MaxProcesses: MaxSlots,
		TickMaxRate:  1024,
		LogLevel:     "info",
	}
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, errors.Wrapf(err, "parsing %s", path)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.BaseProgram == "" {
		return ErrNoBaseProgram
	}

	if c.MaxProcesses < 1 || c.MaxProcesses > MaxSlots {
		return errors.Wrapf(ErrBadMaxProcesses, "got %d, want 1..%d", c.MaxProcesses, MaxSlots)
	}

	if c.TickMaxRate < 2 || c.TickMaxRate&(c.TickMaxRate-1) != 0 {
		return errors.Wrapf(ErrBadTickRate, "got %d", c.TickMaxRate)
	}

	return nil
}

// Interval is the host time between two underlying tick interrupts.
func (c Config) Interval() time.Duration {
	if c.TickInterval > 0 {
		return time.Duration(c.TickInterval)
	}

	return time.Second / time.Duration(c.TickMaxRate)
}
