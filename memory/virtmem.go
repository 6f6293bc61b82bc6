package memory

import (
	"bytes"

	"github.com/pkg/errors"
)

var ErrStringTooLong = errors.New("string not terminated within limit")

// View accesses virtual memory through the MMU at one privilege level.
// Accesses that cross a page are translated page by page.
type View struct {
	mmu  *MMU
	priv Privilege
}

func (m *MMU) View(priv Privilege) *View {
	return &View{mmu: m, priv: priv}
}

func (v *View) access(b []byte, off int64, write bool) (int, error) {
	if off < 0 || off+int64(len(b)) > 1<<32 {
		return 0, &PageFault{Addr: uint32(off), Write: write, User: v.priv == UserMode}
	}

	var done int

	for done < len(b) {
		virt := uint32(off) + uint32(done)

		phys, err := v.mmu.Translate(virt, v.priv, write)
		if err != nil {
			return done, err
		}

		chunk := b[done:]
		if room := PageSize - int(virt%PageSize); len(chunk) > room {
			chunk = chunk[:room]
		}

		var n int
		if write {
			n, err = v.mmu.phys.WriteAt(chunk, int64(phys))
		} else {
			n, err = v.mmu.phys.ReadAt(chunk, int64(phys))
		}

		done += n

		if err != nil {
			return done, err
		}
	}

	return done, nil
}

func (v *View) ReadAt(b []byte, off int64) (int, error) {
	return v.access(b, off, false)
}

func (v *View) WriteAt(b []byte, off int64) (int, error) {
	return v.access(b, off, true)
}

// ReadCString reads a NUL terminated string at addr, at most max bytes
// excluding the terminator.
func (v *View) ReadCString(addr uint32, max int) ([]byte, error) {
	var buf bytes.Buffer

	var t [1]byte

	off := int64(addr)

	for {
		_, err := v.ReadAt(t[:], off)
		if err != nil {
			return nil, err
		}

		if t[0] == 0 {
			break
		}

		if buf.Len() == max {
			return nil, errors.Wrapf(ErrStringTooLong, "addr=%#x max=%d", addr, max)
		}

		buf.WriteByte(t[0])
		off += 1
	}

	return buf.Bytes(), nil
}
