package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

func runInspect(ctx context.Context, e *env, args []string) error {
	flags := newFlagSet(e, "inspect", "<artifact>")
	entries := flags.Bool("entries", true, "list manifest entries")
	pos, err := parse(flags, args, 1, 1)
	if err != nil {
		return err
	}

	c, err := openArtifact(ctx, e, pos[0])
	if err != nil {
		return err
	}
	defer c.Close()

	d := c.Descriptor
	fmt.Fprintf(e.stdout, "shebang:  %s\n", orNone(c.Shebang))
	fmt.Fprintf(e.stdout, "codec:    %s\n", d.Codec)
	fmt.Fprintf(e.stdout, "layout:   %s\n", d.Layout)
	fmt.Fprintf(e.stdout, "data:     %s\n", humanize.Bytes(uint64(c.DataSize()))) //nolint:gosec // size is non-negative
	fmt.Fprintf(e.stdout, "manifest: %s, %s entries\n", d.Manifest, humanize.Comma(int64(c.Manifest.Len())))

	if len(d.Bootstrap) > 0 {
		fmt.Fprintln(e.stdout, "bootstrap:")
		for i, b := range d.Bootstrap {
			fmt.Fprintf(e.stdout, "  %d. %s %s\n", i+1, b.Name, b.Segment)
		}
	}

	if !*entries || c.Manifest.Len() == 0 {
		return nil
	}
	fmt.Fprintln(e.stdout, "entries:")
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  OFFSET\tLENGTH\tPATH")
	for p, seg := range c.Manifest.All() {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", seg.Offset, humanize.IBytes(seg.Length), p)
	}
	return tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
