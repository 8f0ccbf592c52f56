// Package pnp packs named files into a single self-contained container and
// loads them back through a virtual file system.
//
// A container is an optional shebang line, loader text carrying a
// descriptor block, a marker line, and a data section of independently
// compressed entries followed by a manifest mapping logical paths to their
// byte ranges. Because entries are compressed one by one, any entry can be
// read without decompressing the rest.
//
// # Building
//
// [Pack] writes a container to any io.Writer and [PackFile] writes one
// atomically to disk:
//
//	res, err := pnp.PackFile(ctx, "app.pnp",
//	    pnp.PackWithCodec(codec.MustNew(codec.KindGzip)),
//	    pnp.PackWithFile("/src/main.php", "src/main.php"),
//	    pnp.PackWithBootstrap("src/main.php"),
//	)
//
// Two layouts exist. [archive.LayoutSeekable] appends the raw data section
// and is read with random access. [archive.LayoutStreamable] embeds the data
// section as one base64 line so the artifact can be consumed from a pipe.
//
// # Loading
//
// [Open], [OpenURL] and [Read] parse a container and return a [Container]
// that can be registered with a [vfs.FileSystem]:
//
//	c, err := pnp.Open("app.pnp")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	fsys := vfs.New()
//	if err := c.Register(fsys, "app"); err != nil {
//	    return err
//	}
//	f, err := fsys.Open("pnp://app/src/main.php")
//
// [Container.Boot] registers the container and hands every bootstrap entry,
// in order, to a host supplied [ExecutionSink].
package pnp
