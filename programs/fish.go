package programs

import (
	"github.com/evanphx/minikern/ulib"
)

const (
	screenCols = 80
	attrNormal = 0x07
)

const frame0 = `/~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~\
|         ><>                    |
|                 o              |
|     ><>          o   <><       |
|                    o           |
\_______________________________/
`

const frame1 = `/~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~\
|          ><>                   |
|                o               |
|      ><>         o  <><        |
|                   o            |
\_______________________________/
`

// drawFrame copies a text frame into the display buffer at vmem.
func drawFrame(p *ulib.Proc, vmem uint32, frame []byte) {
	row, col := 0, 0

	for _, c := range frame {
		if c == '\n' {
			row++
			col = 0
			continue
		}

		if col < screenCols {
			p.Store(vmem+uint32(row*screenCols+col)*2, []byte{c, attrNormal})
		}

		col++
	}
}

// Fish animates two frames directly in display memory.
func Fish(p *ulib.Proc) int32 {
	n := countArg(p, 4)

	vmem, ret := p.Vidmap()
	if ret < 0 {
		p.Puts("vidmap failed\n")
		return 2
	}

	var frames [2][]byte

	for i, name := range []string{"frame0.txt", "frame1.txt"} {
		fd := p.Open(name)
		if fd < 0 {
			p.Puts("frame open failed\n")
			return 2
		}

		buf := make([]byte, 1024)

		cnt := p.Read(fd, buf)
		if cnt < 0 {
			return 3
		}

		frames[i] = buf[:cnt]

		p.Close(fd)
	}

	fd := openTicks(p, 8)
	if fd < 0 {
		p.Puts("rtc open failed\n")
		return 2
	}

	var tick [4]byte

	for i := 0; i < n; i++ {
		drawFrame(p, vmem, frames[i%2])

		if p.Read(fd, tick[:]) < 0 {
			return 3
		}
	}

	p.Close(fd)

	return 0
}
