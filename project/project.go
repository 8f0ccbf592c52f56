// Package project reads pnp.yaml project files.
//
// A project file names the files to pack, the bootstraps to run on load and
// the build settings:
//
//	output: build/app.pnp
//	shebang: "#!/usr/bin/env php"
//	codec: gzip
//	layout: seekable
//	files:
//	  - src/main.php
//	  - name: /config.json
//	    path: config/prod.json
//	dirs:
//	  - vendor
//	bootstraps:
//	  - vendor/autoload.php
//	  - src/main.php
//	source_extensions: [.php, .inc]
//
// Relative paths are resolved against the project file's directory. Files
// listed by path are packed under their project-relative path; directories
// are walked recursively in lexical order.
package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/meigma/pnp"
	"github.com/meigma/pnp/archive"
	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/manifest"
)

// DefaultName is the project file name looked up by the CLI.
const DefaultName = "pnp.yaml"

// ErrInvalid is returned for a malformed project file.
var ErrInvalid = errors.New("pnp: invalid project file")

// File is a parsed project file. It implements pnp.Discovery.
type File struct {
	Output           string            `yaml:"output"`
	Shebang          *string           `yaml:"shebang"`
	Codec            string            `yaml:"codec"`
	Layout           string            `yaml:"layout"`
	Files            []FileEntry       `yaml:"files"`
	Dirs             []string          `yaml:"dirs"`
	BootstrapPaths   []string          `yaml:"bootstraps"`
	SourceExtensions []string          `yaml:"source_extensions"`
	Vars             map[string]string `yaml:"vars"`

	// dir is the directory relative paths are resolved against.
	dir string
}

var _ pnp.Discovery = (*File)(nil)

// FileEntry is one entry of the files list: either a bare path or a
// {name, path} mapping.
type FileEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// UnmarshalYAML accepts a scalar path or a mapping.
func (e *FileEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Path = node.Value
		return nil
	}
	type plain FileEntry
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = FileEntry(p)
	return nil
}

// Load reads and parses the project file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse parses project file content. Relative paths resolve against dir.
func Parse(data []byte, dir string) (*File, error) {
	f := &File{dir: dir}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for i, e := range f.Files {
		if e.Path == "" {
			return nil, fmt.Errorf("%w: files[%d] has no path", ErrInvalid, i)
		}
	}
	if _, err := f.codec(); err != nil {
		return nil, err
	}
	if _, err := archive.ParseLayout(f.Layout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return f, nil
}

// Dir returns the directory relative paths resolve against.
func (f *File) Dir() string {
	return f.dir
}

// Sources implements pnp.Discovery: listed files first, then the contents
// of each listed directory.
func (f *File) Sources(ctx context.Context) ([]pnp.Source, error) {
	var sources []pnp.Source
	for _, e := range f.Files {
		name := e.Name
		if name == "" {
			name = e.Path
		}
		sources = append(sources, pnp.Source{
			Name: manifest.CleanPath(filepath.ToSlash(name)),
			Path: f.resolve(e.Path),
		})
	}
	for _, d := range f.Dirs {
		walked, err := f.walk(ctx, d)
		if err != nil {
			return nil, err
		}
		sources = append(sources, walked...)
	}
	return sources, nil
}

// Bootstraps implements pnp.Discovery.
func (f *File) Bootstraps(context.Context) ([]string, error) {
	paths := make([]string, len(f.BootstrapPaths))
	for i, b := range f.BootstrapPaths {
		paths[i] = f.resolve(b)
	}
	return paths, nil
}

// Options converts the build settings to pack options. The project itself
// is included as the discovery source.
func (f *File) Options() ([]pnp.PackOption, error) {
	c, err := f.codec()
	if err != nil {
		return nil, err
	}
	layout, err := archive.ParseLayout(f.Layout)
	if err != nil {
		return nil, err
	}
	opts := []pnp.PackOption{
		pnp.PackWithDiscovery(f),
		pnp.PackWithCodec(c),
		pnp.PackWithLayout(layout),
	}
	if f.Shebang != nil {
		opts = append(opts, pnp.PackWithShebang(*f.Shebang))
	}
	if f.SourceExtensions != nil {
		opts = append(opts, pnp.PackWithSourceExtensions(f.SourceExtensions...))
	}
	if len(f.Vars) > 0 {
		opts = append(opts, pnp.PackWithVars(f.Vars))
	}
	return opts, nil
}

// OutputPath returns the configured output resolved against the project
// directory, or "" if unset.
func (f *File) OutputPath() string {
	if f.Output == "" || f.Output == "-" {
		return f.Output
	}
	return f.resolve(f.Output)
}

func (f *File) codec() (codec.Codec, error) {
	kind, err := codec.ParseKind(f.Codec)
	if err != nil {
		return nil, err
	}
	return codec.New(kind)
}

func (f *File) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.dir, p)
}

// walk lists regular files under the project-relative directory d.
func (f *File) walk(ctx context.Context, d string) ([]pnp.Source, error) {
	root := f.resolve(d)
	var sources []pnp.Source
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(f.dir, path)
		if err != nil {
			return err
		}
		sources = append(sources, pnp.Source{
			Name: manifest.CleanPath(filepath.ToSlash(rel)),
			Path: path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d, err)
	}
	return sources, nil
}
