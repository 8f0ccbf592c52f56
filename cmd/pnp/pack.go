package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/meigma/pnp"
	"github.com/meigma/pnp/archive"
	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/project"
)

func runPack(ctx context.Context, e *env, args []string) error {
	flags := newFlagSet(e, "pack", "")
	var (
		projectPath = flags.StringP("project", "p", "", "project file (default ./"+project.DefaultName+" if present)")
		output      = flags.StringP("output", "o", "", `output file, "-" for stdout`)
		codecName   = flags.StringP("compression", "c", "none", "codec: "+kindNames())
		layoutName  = flags.StringP("layout", "l", "seekable", "layout: seekable or streamable")
		streamable  = flags.BoolP("streamable", "s", false, "shorthand for --layout=streamable")
		shebang     = flags.String("shebang", pnp.DefaultShebang, "first line of the artifact, empty to omit")
		files       = flags.StringArrayP("file", "f", nil, "file to pack as PATH or NAME=PATH (repeatable)")
		bootstraps  = flags.StringArrayP("bootstrap", "b", nil, "file to execute on load (repeatable)")
		noMinify    = flags.Bool("no-minify", false, "pack source files unmodified")
	)
	if _, err := parse(flags, args, 0, 0); err != nil {
		return err
	}

	var opts []pnp.PackOption
	bootCount := len(*bootstraps)

	proj, err := loadProject(*projectPath)
	if err != nil {
		return err
	}
	if proj != nil {
		projOpts, err := proj.Options()
		if err != nil {
			return err
		}
		opts = append(opts, projOpts...)
		bootCount += len(proj.BootstrapPaths)
		if *output == "" {
			*output = proj.OutputPath()
		}
	}

	if proj == nil || flags.Changed("compression") {
		kind, err := codec.ParseKind(*codecName)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		c, err := codec.New(kind)
		if err != nil {
			return err
		}
		opts = append(opts, pnp.PackWithCodec(c))
	}
	if proj == nil || flags.Changed("layout") || *streamable {
		layout, err := archive.ParseLayout(*layoutName)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if *streamable {
			layout = archive.LayoutStreamable
		}
		opts = append(opts, pnp.PackWithLayout(layout))
	}
	if proj == nil || flags.Changed("shebang") {
		opts = append(opts, pnp.PackWithShebang(*shebang))
	}
	for _, f := range *files {
		name, path, ok := strings.Cut(f, "=")
		if !ok {
			name, path = f, f
		}
		opts = append(opts, pnp.PackWithFile(name, path))
	}
	opts = append(opts, pnp.PackWithBootstrap(*bootstraps...))
	if *noMinify {
		opts = append(opts, pnp.PackWithMinifier(nil))
	}
	opts = append(opts, pnp.PackWithLogger(e.logger))

	if *output == "" {
		return fmt.Errorf("%w: --output is required", errUsage)
	}
	if bootCount == 0 {
		return fmt.Errorf("%w: at least one bootstrap file is required", errUsage)
	}

	var res *pnp.Result
	if *output == "-" {
		res, err = pnp.Pack(ctx, e.stdout, opts...)
	} else {
		res, err = pnp.PackFile(ctx, *output, opts...)
	}
	if err != nil {
		return err
	}

	summary := e.stdout
	if *output == "-" {
		summary = e.stderr
	}
	fmt.Fprintf(summary, "%s: %d entries, %d bootstraps, %s (%s, %s) %s\n",
		*output, res.Manifest.Len(), len(res.Descriptor.Bootstrap),
		humanize.Bytes(uint64(res.Size)), //nolint:gosec // size is non-negative
		res.Descriptor.Codec, res.Descriptor.Layout, res.Digest)
	return nil
}

// loadProject loads path, or ./pnp.yaml when path is empty and the file
// exists. It returns nil when no project file applies.
func loadProject(path string) (*project.File, error) {
	if path != "" {
		return project.Load(path)
	}
	f, err := project.Load(project.DefaultName)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return f, err
}

func kindNames() string {
	names := make([]string, 0, len(codec.Kinds()))
	for _, k := range codec.Kinds() {
		if c, err := codec.New(k); err == nil && c.Available() {
			names = append(names, k.String())
		}
	}
	return strings.Join(names, ", ")
}
