// Package tarfs builds boot images out of tar archives.
package tarfs

import (
	"archive/tar"
	"io"
	"io/ioutil"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/evanphx/minikern/fs"
	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/evanphx/minikern/log"
)

type entry struct {
	hdr    *tar.Header
	dirent fs.Dirent
	body   []byte
}

func (e *entry) String() string {
	return spew.Sdump(e.dirent)
}

// TarFS holds the entries of an archive flattened into the single directory
// the boot image supports.
type TarFS struct {
	entries []*entry
	seen    map[string]int
}

func flatName(name string) string {
	if len(name) > 2 && name[:2] == "./" {
		name = name[2:]
	}

	if len(name) >= 1 && name[0] == '/' {
		name = name[1:]
	}

	if name == "" || name == "./" || name == "." {
		return "."
	}

	return filepath.Base(name)
}

// NewTarFS reads the whole archive. Subdirectories are dropped, files in them
// keep only their base name, character devices become tick device entries
// and the archive root becomes the "." directory entry. A later entry with
// the same name replaces an earlier one.
func NewTarFS(r io.Reader) (*TarFS, error) {
	tr := tar.NewReader(r)

	t := &TarFS{
		seen: make(map[string]int),
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		name := flatName(hdr.Name)

		e := &entry{hdr: hdr}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if name != "." {
				log.L.Trace("tarfs-skip-dir", "name", hdr.Name)
				continue
			}

			e.dirent = fs.Dirent{Name: name, Type: fs.Directory}
		case tar.TypeChar:
			e.dirent = fs.Dirent{Name: name, Type: fs.Device}
		case tar.TypeReg:
			data, err := ioutil.ReadAll(tr)
			if err != nil {
				return nil, err
			}

			e.dirent = fs.Dirent{Name: name, Type: fs.RegularFile}
			e.body = data
		default:
			log.L.Trace("tarfs-skip-entry", "name", hdr.Name, "type", hdr.Typeflag)
			continue
		}

		if len(name) > fs.NameLen {
			return nil, errors.Wrapf(fs.ErrNameTooLong, "archive entry %q", hdr.Name)
		}

		log.L.Trace("tarfs-entry", "entry", e)

		if idx, ok := t.seen[name]; ok {
			t.entries[idx] = e
			continue
		}

		t.seen[name] = len(t.entries)
		t.entries = append(t.entries, e)
	}

	if _, ok := t.seen["."]; !ok {
		root := &entry{dirent: fs.Dirent{Name: ".", Type: fs.Directory}}
		t.entries = append([]*entry{root}, t.entries...)
	}

	return t, nil
}

// Image encodes the archive contents as a boot image.
func (t *TarFS) Image() ([]byte, error) {
	b := bootfs.NewBuilder()

	for _, e := range t.entries {
		var err error

		switch e.dirent.Type {
		case fs.Directory:
			err = b.AddDirectory(e.dirent.Name)
		case fs.Device:
			err = b.AddDevice(e.dirent.Name)
		default:
			err = b.AddFile(e.dirent.Name, e.body)
		}

		if err != nil {
			return nil, err
		}
	}

	return b.Bytes()
}
