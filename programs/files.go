package programs

import (
	"github.com/evanphx/minikern/fs"
	"github.com/evanphx/minikern/ulib"
)

// Ls prints every directory entry name.
func Ls(p *ulib.Proc) int32 {
	fd := p.Open(".")
	if fd < 0 {
		p.Puts("directory open failed\n")
		return 2
	}

	buf := make([]byte, fs.NameLen)

	for {
		n := p.Read(fd, buf)
		if n < 0 {
			p.Puts("directory entry read failed\n")
			return 3
		}

		if n == 0 {
			break
		}

		p.Puts(string(buf[:n]) + "\n")
	}

	p.Close(fd)

	return 0
}

// Cat copies the file named by its argument to the console.
func Cat(p *ulib.Proc) int32 {
	name, ret := p.GetArgs(1024)
	if ret < 0 || name == "" {
		p.Puts("could not read arguments\n")
		return 3
	}

	fd := p.Open(name)
	if fd < 0 {
		p.Puts("file open failed\n")
		return 2
	}

	buf := make([]byte, 1024)

	for {
		n := p.Read(fd, buf)
		if n < 0 {
			p.Puts("file read failed\n")
			return 3
		}

		if n == 0 {
			break
		}

		if p.Write(1, buf[:n]) < 0 {
			return 3
		}
	}

	p.Close(fd)

	return 0
}

// Hello asks for a name and greets it.
func Hello(p *ulib.Proc) int32 {
	p.Puts("Hi, what's your name? ")

	name, n := p.Gets()
	if n < 0 {
		return 3
	}

	p.Puts("Hello, " + name + "\n")

	return 0
}
