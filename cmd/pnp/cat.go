package main

import (
	"context"
	"io"

	"github.com/meigma/pnp/vfs"
)

// archiveName is the name artifacts are registered under by cat and boot.
const archiveName = "app"

func runCat(ctx context.Context, e *env, args []string) error {
	flags := newFlagSet(e, "cat", "<artifact> <path>...")
	pos, err := parse(flags, args, 2, -1)
	if err != nil {
		return err
	}

	c, err := openArtifact(ctx, e, pos[0])
	if err != nil {
		return err
	}
	defer c.Close()

	fsys := vfs.New(vfs.WithLogger(e.logger))
	if err := c.Register(fsys, archiveName); err != nil {
		return err
	}
	for _, p := range pos[1:] {
		f, err := fsys.Open(vfs.Path(archiveName, p))
		if err != nil {
			return err
		}
		_, err = io.Copy(e.stdout, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
