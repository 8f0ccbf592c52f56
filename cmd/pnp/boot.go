package main

import (
	"context"
	"fmt"

	"github.com/meigma/pnp"
	"github.com/meigma/pnp/vfs"
)

// runBoot hands every bootstrap entry to a sink that prints it, which shows
// exactly what a host execution engine would receive.
func runBoot(ctx context.Context, e *env, args []string) error {
	flags := newFlagSet(e, "boot", "<artifact>")
	namesOnly := flags.BoolP("names", "n", false, "print bootstrap names only")
	pos, err := parse(flags, args, 1, 1)
	if err != nil {
		return err
	}

	c, err := openArtifact(ctx, e, pos[0])
	if err != nil {
		return err
	}
	defer c.Close()

	sink := pnp.ExecutionSinkFunc(func(_ context.Context, data []byte, name string) error {
		if *namesOnly {
			_, err := fmt.Fprintln(e.stdout, name)
			return err
		}
		if _, err := fmt.Fprintf(e.stdout, "==> %s (%d bytes)\n", vfs.Path(archiveName, name), len(data)); err != nil {
			return err
		}
		_, err := fmt.Fprintf(e.stdout, "%s\n", data)
		return err
	})
	return c.Boot(ctx, vfs.New(vfs.WithLogger(e.logger)), archiveName, sink)
}
