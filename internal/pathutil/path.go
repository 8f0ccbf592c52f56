// Package pathutil normalizes virtual paths used as manifest keys.
package pathutil

import "strings"

// Root is the canonical path of the synthetic archive root.
const Root = "/"

// Clean converts p into a canonical manifest key.
//
// It performs the following transformations:
//   - Accepts both "/" and "\" as separators: `a\b` → "/a/b"
//   - Drops empty segments: "a//b/" → "/a/b"
//   - Drops "." segments: "a/./b" → "/a/b"
//   - Resolves ".." against the retained segments: "a/../b" → "/b"
//   - Discards ".." above the root instead of failing: "../../etc" → "/etc"
//   - Always returns an absolute path: "" → "/"
func Clean(p string) string {
	parts := strings.FieldsFunc(p, isSeparator)
	kept := parts[:0] // reuse backing array
	for _, part := range parts {
		switch part {
		case ".":
		case "..":
			if len(kept) > 0 {
				kept = kept[:len(kept)-1]
			}
		default:
			kept = append(kept, part)
		}
	}
	return Root + strings.Join(kept, "/")
}

// IsClean reports whether p is already in canonical form.
func IsClean(p string) bool {
	return p != "" && Clean(p) == p
}

// Base returns the last element of a canonical path, or "/" for the root.
func Base(p string) string {
	if p == "" || p == Root {
		return Root
	}
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
