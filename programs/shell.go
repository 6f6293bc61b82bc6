package programs

import (
	"strings"

	"github.com/evanphx/minikern/kernel"
	"github.com/evanphx/minikern/ulib"
)

const Prompt = "391OS> "

// Shell reads commands from the console and executes them until told to
// exit.
func Shell(p *ulib.Proc) int32 {
	for {
		p.Puts(Prompt)

		line, n := p.Gets()
		if n < 0 {
			return 1
		}

		line = strings.TrimSpace(line)

		switch line {
		case "":
			continue
		case "exit":
			return 0
		}

		switch ret := p.Execute(line); {
		case ret == -kernel.ENOENT, ret == -kernel.ENOEXEC:
			p.Puts("no such command\n")
		case ret == -kernel.EAGAIN:
			p.Puts("too many processes\n")
		case ret < 0:
			p.Puts("could not execute command\n")
		case ret == kernel.FaultStatus:
			p.Puts("program terminated by exception\n")
		case ret != 0:
			p.Puts("program terminated abnormally\n")
		}
	}
}
