// Command pnp builds and inspects pnp containers.
//
// Usage:
//
//	pnp pack [flags]              build a container
//	pnp inspect <artifact>        print descriptor, manifest and bootstraps
//	pnp cat <artifact> <path>...  print entries
//	pnp boot <artifact>           run bootstraps through the print sink
//
// An artifact is a file path, an http(s) URL or "-" for stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/meigma/pnp"
)

// errUsage marks errors caused by invalid invocation.
var errUsage = errors.New("usage")

type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{"pack", "build a container", runPack},
	{"inspect", "print descriptor, manifest and bootstraps", runInspect},
	{"cat", "print entries", runCat},
	{"boot", "run bootstraps through the print sink", runBoot},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "pnp: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	e := &env{stdin: stdin, stdout: stdout, stderr: stderr}

	global := pflag.NewFlagSet("pnp", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	verbose := global.BoolP("verbose", "v", false, "enable debug logging")
	global.Usage = func() { usage(stderr, global) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	e.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	rest := global.Args()
	if len(rest) == 0 {
		usage(stderr, global)
		return fmt.Errorf("%w: missing command", errUsage)
	}
	for _, cmd := range commands {
		if cmd.name == rest[0] {
			return cmd.run(ctx, e, rest[1:])
		}
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
}

func usage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: pnp [-v] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

// newFlagSet returns a subcommand flag set that reports errors to e.stderr.
func newFlagSet(e *env, name, args string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("pnp "+name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "usage: pnp %s [flags] %s\n\nflags:\n%s", name, args, fs.FlagUsages())
	}
	return fs
}

// parse parses a subcommand's flags and checks its positional arity.
func parse(fs *pflag.FlagSet, args []string, minArgs, maxArgs int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	pos := fs.Args()
	if len(pos) < minArgs || (maxArgs >= 0 && len(pos) > maxArgs) {
		fs.Usage()
		return nil, fmt.Errorf("%w: %s: wrong number of arguments", errUsage, fs.Name())
	}
	return pos, nil
}

// openArtifact opens a container from a path, an http(s) URL or stdin.
func openArtifact(ctx context.Context, e *env, ref string) (*pnp.Container, error) {
	switch {
	case ref == "-":
		return pnp.Read(e.stdin, pnp.OpenWithLogger(e.logger))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return pnp.OpenURL(ctx, ref, pnp.OpenWithLogger(e.logger))
	default:
		return pnp.Open(ref, pnp.OpenWithLogger(e.logger))
	}
}
