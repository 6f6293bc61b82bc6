// Package programs holds the native user programs shipped in the boot image.
package programs

import (
	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/evanphx/minikern/kernel"
	"github.com/evanphx/minikern/loader"
	"github.com/evanphx/minikern/memory"
	"github.com/evanphx/minikern/ulib"
	"github.com/pkg/errors"
)

type Program struct {
	Name  string
	Entry uint32
	Main  func(p *ulib.Proc) int32
}

// Routine adapts the program to run on the CPU.
func (p Program) Routine() kernel.Routine {
	return func(u *kernel.User) int32 {
		return p.Main(ulib.New(u))
	}
}

// Image is the program file: a header naming the entry followed by the
// program name as its body.
func (p Program) Image() []byte {
	return loader.Build(p.Entry, []byte(p.Name))
}

func entry(n int) uint32 {
	return memory.ProgramImage + 0x1000 + uint32(n)*0x100
}

var All = []Program{
	{"shell", entry(0), Shell},
	{"ls", entry(1), Ls},
	{"cat", entry(2), Cat},
	{"hello", entry(3), Hello},
	{"counter", entry(4), Counter},
	{"pingpong", entry(5), Pingpong},
	{"fish", entry(6), Fish},
	{"sigtest", entry(7), Sigtest},
	{"syserr", entry(8), Syserr},
	{"crash", entry(9), Crash},
}

// Install registers every program with cpu.
func Install(cpu *kernel.CPU) error {
	for _, p := range All {
		if err := cpu.Register(p.Entry, p.Name, p.Routine()); err != nil {
			return err
		}
	}

	return nil
}

// Files are the data files shipped next to the programs.
var Files = []struct {
	Name string
	Data string
}{
	{"frame0.txt", frame0},
	{"frame1.txt", frame1},
	{"created.txt", "very large text file with a very long name\n"},
	{"verylargetextwithverylongname.tx", "12345678901234567890123456789012345678901234567890\n"},
}

// AddTo writes the directory, the tick device, the programs and the data
// files into b.
func AddTo(b *bootfs.Builder) error {
	if err := b.AddDirectory("."); err != nil {
		return err
	}

	if err := b.AddDevice("rtc"); err != nil {
		return err
	}

	for _, p := range All {
		if err := b.AddFile(p.Name, p.Image()); err != nil {
			return errors.Wrapf(err, "adding %s", p.Name)
		}
	}

	for _, f := range Files {
		if err := b.AddFile(f.Name, []byte(f.Data)); err != nil {
			return errors.Wrapf(err, "adding %s", f.Name)
		}
	}

	return nil
}

// Image builds the default boot image.
func Image() ([]byte, error) {
	b := bootfs.NewBuilder()

	if err := AddTo(b); err != nil {
		return nil, err
	}

	return b.Bytes()
}
