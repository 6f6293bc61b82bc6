package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"

	"github.com/evanphx/minikern/fs"
	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/evanphx/minikern/loader"
)

func dump(w io.Writer, f *bootfs.FS) error {
	fmt.Fprintf(w, "\n[entries]\n")

	tr := tabwriter.NewWriter(w, 4, 8, 1, ' ', 0)

	ld := loader.NewLoader(f, nil)

	for i, d := range f.Entries() {
		switch d.Type {
		case fs.RegularFile:
			rec, err := f.Stat(d.Inode)
			if err != nil {
				return err
			}

			desc := "data"

			if img, err := ld.Load(d); err == nil {
				desc = fmt.Sprintf("exec entry=%#08x blake2b=%s", img.Entry(), img.Digest[:16])
			}

			fmt.Fprintf(tr, "%d\t%s\t%s\tinode=%d\tlen=%d\tblocks=%v\t%s\n",
				i, d.Name, d.Type, d.Inode, rec.Length, rec.Blocks, desc)
		default:
			fmt.Fprintf(tr, "%d\t%s\t%s\n", i, d.Name, d.Type)
		}
	}

	tr.Flush()

	fmt.Fprintf(w, "\n[raw]\n")
	spew.Fdump(w, f.Entries())

	return nil
}
