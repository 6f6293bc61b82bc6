package programs

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/evanphx/minikern/ulib"
)

// openTicks opens the tick device at rate.
func openTicks(p *ulib.Proc, rate uint32) int32 {
	fd := p.Open("rtc")
	if fd < 0 {
		return fd
	}

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], rate)

	if ret := p.Write(fd, b[:]); ret < 0 {
		p.Close(fd)
		return ret
	}

	return fd
}

// countArg reads a count from the arguments, falling back to def.
func countArg(p *ulib.Proc, def int) int {
	args, ret := p.GetArgs(32)
	if ret < 0 {
		return def
	}

	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n <= 0 {
		return def
	}

	return n
}

// Counter prints a count once per tick at 8 Hz.
func Counter(p *ulib.Proc) int32 {
	n := countArg(p, 5)

	fd := openTicks(p, 8)
	if fd < 0 {
		p.Puts("rtc open failed\n")
		return 2
	}

	var tick [4]byte

	for i := 0; i < n; i++ {
		if p.Read(fd, tick[:]) < 0 {
			return 3
		}

		p.Puts(ulib.Itoa(int32(i+1)) + "\n")
	}

	p.Close(fd)

	return 0
}

// Pingpong bounces a ball across a line once per tick.
func Pingpong(p *ulib.Proc) int32 {
	n := countArg(p, 18)

	fd := openTicks(p, 32)
	if fd < 0 {
		p.Puts("rtc open failed\n")
		return 2
	}

	const width = 10

	pos, dir := 0, 1

	var tick [4]byte

	for i := 0; i < n; i++ {
		if p.Read(fd, tick[:]) < 0 {
			return 3
		}

		p.Puts(strings.Repeat(" ", pos) + "o\n")

		if pos+dir < 0 || pos+dir >= width {
			dir = -dir
		}

		pos += dir
	}

	p.Close(fd)

	return 0
}
