package memory

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrPhysicalRange = errors.New("physical address out of range")

// Physical is the machine's RAM. Pages are allocated on first touch.
type Physical struct {
	mu    sync.Mutex
	pages map[uint32]*[PageSize]byte
}

func NewPhysical() *Physical {
	return &Physical{
		pages: make(map[uint32]*[PageSize]byte),
	}
}

func (p *Physical) page(pfn uint32) *[PageSize]byte {
	pg, ok := p.pages[pfn]
	if !ok {
		pg = new([PageSize]byte)
		p.pages[pfn] = pg
	}

	return pg
}

func (p *Physical) access(b []byte, off int64, write bool) (int, error) {
	if off < 0 || off+int64(len(b)) > 1<<32 {
		return 0, errors.Wrapf(ErrPhysicalRange, "addr=%x size=%x", off, len(b))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var done int

	for done < len(b) {
		addr := uint32(off) + uint32(done)
		pg := p.page(addr / PageSize)
		in := addr % PageSize

		if write {
			done += copy(pg[in:], b[done:])
		} else {
			done += copy(b[done:], pg[in:])
		}
	}

	return done, nil
}

func (p *Physical) ReadAt(b []byte, off int64) (int, error) {
	return p.access(b, off, false)
}

func (p *Physical) WriteAt(b []byte, off int64) (int, error) {
	return p.access(b, off, true)
}
