// Package host builds boot images from a directory on the host.
package host

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/evanphx/minikern/log"
)

// NewImage walks the top level of path. Regular files are copied, character
// devices become tick device entries and everything else is skipped. Entries
// are added in name order after the "." directory entry.
func NewImage(path string) ([]byte, error) {
	log.L.Trace("creating image from host dir", "path", path)

	infos, err := ioutil.ReadDir(path)
	if err != nil {
		log.L.Error("error reading host dir", "error", err)
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name() < infos[j].Name()
	})

	b := bootfs.NewBuilder()

	err = b.AddDirectory(".")
	if err != nil {
		return nil, err
	}

	for _, info := range infos {
		mode := info.Mode()

		switch {
		case mode&os.ModeCharDevice != 0:
			err = b.AddDevice(info.Name())
		case mode.IsRegular():
			var data []byte

			data, err = ioutil.ReadFile(filepath.Join(path, info.Name()))
			if err != nil {
				return nil, err
			}

			err = b.AddFile(info.Name(), data)
		default:
			log.L.Trace("skipping host entry", "name", info.Name(), "mode", mode)
			continue
		}

		if err != nil {
			return nil, err
		}
	}

	return b.Bytes()
}
