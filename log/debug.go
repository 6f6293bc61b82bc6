package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

func EnableDebug() {
	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// SetLevel applies a level name from configuration. Unknown names leave the
// current level alone. TRACE in the environment always wins.
func SetLevel(name string) {
	if lvl := hclog.LevelFromString(name); lvl != hclog.NoLevel {
		L.SetLevel(lvl)
	}

	EnableDebug()
}
