package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/evanphx/minikern/fs/host"
	"github.com/evanphx/minikern/fs/tarfs"
	"github.com/evanphx/minikern/programs"
)

var (
	fTar    = pflag.StringP("tar", "t", "", "build the image from a tar archive")
	fDir    = pflag.StringP("dir", "d", "", "build the image from a directory")
	fOutput = pflag.StringP("output", "o", "filesys_img", "where to write the image")
	fDump   = pflag.Bool("dump", false, "describe the images named as arguments instead")
)

func build() ([]byte, error) {
	switch {
	case *fTar != "" && *fDir != "":
		return nil, errors.New("use only one of --tar and --dir")
	case *fTar != "":
		f, err := os.Open(*fTar)
		if err != nil {
			return nil, err
		}

		defer f.Close()

		tf, err := tarfs.NewTarFS(f)
		if err != nil {
			return nil, err
		}

		return tf.Image()
	case *fDir != "":
		return host.NewImage(*fDir)
	default:
		return programs.Image()
	}
}

func run() error {
	pflag.Parse()

	if *fDump {
		if pflag.NArg() == 0 {
			return errors.New("--dump needs at least one image")
		}

		for _, path := range pflag.Args() {
			f, err := bootfs.Open(path)
			if err != nil {
				return errors.Wrapf(err, "opening %s", path)
			}

			if err := dump(os.Stdout, f); err != nil {
				return err
			}
		}

		return nil
	}

	img, err := build()
	if err != nil {
		return err
	}

	return os.WriteFile(*fOutput, img, 0644)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %s\n", err)
		os.Exit(1)
	}
}
