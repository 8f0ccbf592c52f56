package vfs

import (
	"io/fs"
	"strings"

	"github.com/meigma/pnp/internal/pathutil"
)

const schemePrefix = Scheme + "://"

// Path builds the virtual path of subpath inside the archive named name.
func Path(name, subpath string) string {
	return schemePrefix + name + pathutil.Clean(subpath)
}

// ParsePath strips the pnp:// scheme from p and returns the remainder
// ("<name>/<subpath>").
func ParsePath(p string) (string, error) {
	rest, ok := strings.CutPrefix(p, schemePrefix)
	if !ok {
		return "", &fs.PathError{Op: "resolve", Path: p, Err: ErrInvalidPath}
	}
	return rest, nil
}

// Resolve maps a virtual path to the archive holding it and the canonical
// manifest key.
//
// Registered names are tried in registration order; every name for which p
// starts with "pnp://<name>/" is a candidate, and the first candidate whose
// manifest contains the normalized subpath wins. The subpath accepts either
// separator, drops empty and "." segments, and resolves ".." without ever
// climbing above the archive root.
func (fsys *FileSystem) Resolve(p string) (*Handle, string, error) {
	rest, err := ParsePath(p)
	if err != nil {
		return nil, "", err
	}
	for _, h := range fsys.handles {
		sub, ok := strings.CutPrefix(rest, h.Name+"/")
		if !ok {
			continue
		}
		key := pathutil.Clean(sub)
		if _, ok := h.Manifest.Lookup(key); ok {
			return h, key, nil
		}
	}
	return nil, "", &fs.PathError{Op: "resolve", Path: p, Err: ErrNotFound}
}
