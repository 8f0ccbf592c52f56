package vfs

import (
	"io/fs"

	"github.com/meigma/pnp/internal/pathutil"
)

// archiveFS adapts one registered archive to fs.FS.
type archiveFS struct {
	fsys *FileSystem
	name string
}

// Interface compliance.
var (
	_ fs.FS         = archiveFS{}
	_ fs.StatFS     = archiveFS{}
	_ fs.ReadFileFS = archiveFS{}
)

// FS returns an fs.FS view of the archive registered under name. Paths are
// fs.ValidPath names relative to the archive root. The archive is looked up
// on every call, so the view follows later Register and Unregister calls.
// Directories cannot be opened or listed.
func (fsys *FileSystem) FS(name string) fs.FS {
	return archiveFS{fsys: fsys, name: name}
}

func (a archiveFS) Open(name string) (fs.File, error) {
	data, err := a.read("open", name)
	if err != nil {
		return nil, err
	}
	return newFile(name, data), nil
}

func (a archiveFS) ReadFile(name string) ([]byte, error) {
	return a.read("readfile", name)
}

func (a archiveFS) Stat(name string) (fs.FileInfo, error) {
	if _, _, err := a.lookup("stat", name); err != nil {
		return nil, err
	}
	return placeholderInfo{name: pathutil.Base("/" + name)}, nil
}

func (a archiveFS) read(op, name string) ([]byte, error) {
	h, key, err := a.lookup(op, name)
	if err != nil {
		return nil, err
	}
	data, err := a.fsys.readEntry(h, key)
	if err != nil {
		return nil, &fs.PathError{Op: op, Path: name, Err: err}
	}
	return data, nil
}

func (a archiveFS) lookup(op, name string) (*Handle, string, error) {
	if !fs.ValidPath(name) {
		return nil, "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	h, ok := a.fsys.Handle(a.name)
	if !ok {
		return nil, "", &fs.PathError{Op: op, Path: name, Err: ErrNotFound}
	}
	key := pathutil.Clean(name)
	if _, ok := h.Manifest.Lookup(key); !ok {
		return nil, "", &fs.PathError{Op: op, Path: name, Err: ErrNotFound}
	}
	return h, key, nil
}
