package pnp

import "context"

// Source is a file to pack under a logical name.
type Source struct {
	// Name is the logical path inside the container. It is normalized with
	// manifest.CleanPath.
	Name string

	// Path is the file on disk.
	Path string
}

// Discovery supplies the files of a project.
type Discovery interface {
	// Sources returns the files to pack in order.
	Sources(ctx context.Context) ([]Source, error)

	// Bootstraps returns the files to execute when the container loads, in
	// order. They are executed before bootstraps given with
	// PackWithBootstrap.
	Bootstraps(ctx context.Context) ([]string, error)
}
