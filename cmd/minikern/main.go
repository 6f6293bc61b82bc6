package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/evanphx/minikern/config"
	"github.com/evanphx/minikern/device"
	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/evanphx/minikern/kernel"
	"github.com/evanphx/minikern/log"
	"github.com/evanphx/minikern/programs"
	"github.com/evanphx/minikern/syscalls"
)

var (
	fConfig   = pflag.StringP("config", "c", "", "TOML configuration file")
	fImage    = pflag.StringP("image", "i", "", "boot filesystem image (default: built-in programs)")
	fBase     = pflag.StringP("base", "b", "", "program to run at boot")
	fMaxProcs = pflag.Int("max-processes", 0, "number of process slots")
	fLogLevel = pflag.StringP("log-level", "l", "", "log level")
	fRaw      = pflag.Bool("raw", true, "put the terminal in raw mode")
)

const ctrlC = 0x03

// crlf turns line feeds into CR LF for a terminal in raw mode.
type crlf struct {
	w io.Writer
}

func (c crlf) Write(b []byte) (int, error) {
	for _, ch := range b {
		var err error

		switch ch {
		case '\n':
			_, err = c.w.Write([]byte{'\r', '\n'})
		default:
			_, err = c.w.Write([]byte{ch})
		}

		if err != nil {
			return 0, err
		}
	}

	return len(b), nil
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()

	if *fConfig != "" {
		var err error

		cfg, err = config.Load(*fConfig)
		if err != nil {
			return cfg, err
		}
	}

	if pflag.CommandLine.Changed("image") {
		cfg.Image = *fImage
	}

	if pflag.CommandLine.Changed("base") {
		cfg.BaseProgram = *fBase
	}

	if pflag.CommandLine.Changed("max-processes") {
		cfg.MaxProcesses = *fMaxProcs
	}

	if pflag.CommandLine.Changed("log-level") {
		cfg.LogLevel = *fLogLevel
	}

	return cfg, cfg.Validate()
}

func openImage(cfg config.Config) (*bootfs.FS, error) {
	if cfg.Image != "" {
		return bootfs.Open(cfg.Image)
	}

	img, err := programs.Image()
	if err != nil {
		return nil, err
	}

	return bootfs.New(img)
}

// feed copies host keystrokes to the keyboard until stdin closes.
func feed(ctx context.Context, cancel func(), kbd *device.Keyboard, in io.Reader) {
	buf := make([]byte, 64)

	for {
		n, err := in.Read(buf)

		for _, b := range buf[:n] {
			if b == ctrlC {
				cancel()
				return
			}

			kbd.Press(b)
		}

		if err != nil || ctx.Err() != nil {
			return
		}
	}
}

func run() error {
	pflag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.SetLevel(cfg.LogLevel)

	fsys, err := openImage(cfg)
	if err != nil {
		return errors.Wrap(err, "opening image")
	}

	cpu := kernel.NewCPU()

	if err := programs.Install(cpu); err != nil {
		return err
	}

	var out io.Writer = os.Stdout

	fd := int(os.Stdin.Fd())

	if *fRaw && term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return errors.Wrap(err, "entering raw mode")
		}

		defer term.Restore(fd, state)

		out = crlf{w: os.Stdout}
	}

	var kbd device.Keyboard

	tick := device.NewTickDevice(uint32(cfg.TickMaxRate))

	k, err := kernel.NewKernel(kernel.Options{
		FS:           fsys,
		CPU:          cpu,
		Console:      device.NewTerminal(&kbd, out),
		Tick:         tick,
		BaseProgram:  cfg.BaseProgram,
		MaxProcesses: cfg.MaxProcesses,
	})
	if err != nil {
		return err
	}

	syscalls.NewInvoker(k)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go device.NewClock(cfg.Interval(), tick).Run(ctx)
	go feed(ctx, cancel, &kbd, os.Stdin)

	log.L.Debug("booting", "base", cfg.BaseProgram, "slots", cfg.MaxProcesses, "image", cfg.Image)

	err = k.Boot(ctx)
	if errors.Cause(err) == kernel.ErrShutdown {
		return nil
	}

	return err
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "minikern: %s\r\n", err)
		os.Exit(1)
	}
}
