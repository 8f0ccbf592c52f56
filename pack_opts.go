package pnp

import (
	"log/slog"

	"github.com/meigma/pnp/archive"
	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/loader"
	"github.com/meigma/pnp/minify"
)

// DefaultShebang is the interpreter line written when none is configured.
const DefaultShebang = "#!/usr/bin/env pnp"

// PackOption configures Pack and PackFile.
type PackOption func(*packConfig)

type packConfig struct {
	codec      codec.Codec
	layout     archive.Layout
	shebang    string
	sources    []Source
	bootstraps []string
	discovery  Discovery
	generator  loader.Generator
	minifier   minify.Func
	sourceExts []string
	vars       map[string]string
	logger     *slog.Logger
}

func newPackConfig(opts []PackOption) *packConfig {
	cfg := &packConfig{
		codec:      codec.MustNew(codec.KindNone),
		layout:     archive.LayoutSeekable,
		shebang:    DefaultShebang,
		generator:  loader.Default(),
		minifier:   minify.Source,
		sourceExts: []string{".php"},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}
	return cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (cfg *packConfig) log() *slog.Logger {
	if cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return cfg.logger
}

// PackWithCodec sets the codec applied to every entry. The default is
// codec.KindNone.
func PackWithCodec(c codec.Codec) PackOption {
	return func(cfg *packConfig) {
		cfg.codec = c
	}
}

// PackWithLayout sets the container layout. The default is
// archive.LayoutSeekable.
func PackWithLayout(l archive.Layout) PackOption {
	return func(cfg *packConfig) {
		cfg.layout = l
	}
}

// PackWithShebang sets the first line of the artifact. An empty string
// omits the line.
func PackWithShebang(shebang string) PackOption {
	return func(cfg *packConfig) {
		cfg.shebang = shebang
	}
}

// PackWithFile adds the file at path under the logical name.
func PackWithFile(name, path string) PackOption {
	return func(cfg *packConfig) {
		cfg.sources = append(cfg.sources, Source{Name: name, Path: path})
	}
}

// PackWithSources adds files in order.
func PackWithSources(sources ...Source) PackOption {
	return func(cfg *packConfig) {
		cfg.sources = append(cfg.sources, sources...)
	}
}

// PackWithBootstrap adds files to execute when the container loads. Each
// is packed under manifest.CleanPath(path) unless a source already covers
// the same file.
func PackWithBootstrap(paths ...string) PackOption {
	return func(cfg *packConfig) {
		cfg.bootstraps = append(cfg.bootstraps, paths...)
	}
}

// PackWithDiscovery adds the sources and bootstraps reported by d. They
// precede those given directly.
func PackWithDiscovery(d Discovery) PackOption {
	return func(cfg *packConfig) {
		cfg.discovery = d
	}
}

// PackWithGenerator sets the loader text generator. The default is
// loader.Default().
func PackWithGenerator(g loader.Generator) PackOption {
	return func(cfg *packConfig) {
		cfg.generator = g
	}
}

// PackWithMinifier sets the function applied to source entries. nil
// disables minification.
func PackWithMinifier(f minify.Func) PackOption {
	return func(cfg *packConfig) {
		cfg.minifier = f
	}
}

// PackWithSourceExtensions sets the name suffixes that mark an entry as
// source text to minify. The default is ".php".
func PackWithSourceExtensions(exts ...string) PackOption {
	return func(cfg *packConfig) {
		cfg.sourceExts = exts
	}
}

// PackWithVars passes variables to the loader generator.
func PackWithVars(vars map[string]string) PackOption {
	return func(cfg *packConfig) {
		if cfg.vars == nil {
			cfg.vars = make(map[string]string, len(vars))
		}
		for k, v := range vars {
			cfg.vars[k] = v
		}
	}
}

// PackWithLogger sets the logger for build progress.
func PackWithLogger(logger *slog.Logger) PackOption {
	return func(cfg *packConfig) {
		cfg.logger = logger
	}
}
