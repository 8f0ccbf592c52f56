// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// WriteTree creates files under a fresh temp dir and returns the dir.
// Names are slash-separated and relative to the dir.
func WriteTree(tb testing.TB, files map[string]string) string {
	tb.Helper()
	dir := tb.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			tb.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // test fixtures
			tb.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// CountingSource is an in-memory io.ReaderAt that records how often it is
// read and the lowest and highest byte offsets touched.
type CountingSource struct {
	data []byte

	mu    sync.Mutex
	calls int
	lo    int64
	hi    int64
}

// NewCountingSource returns a source backed by data.
func NewCountingSource(data []byte) *CountingSource {
	return &CountingSource{data: data, lo: -1}
}

// ReadAt implements io.ReaderAt over the backing slice.
func (s *CountingSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	var n int
	if off < int64(len(s.data)) {
		n = copy(p, s.data[off:])
	}

	s.mu.Lock()
	s.calls++
	if n > 0 {
		if s.lo < 0 || off < s.lo {
			s.lo = off
		}
		if end := off + int64(n); end > s.hi {
			s.hi = end
		}
	}
	s.mu.Unlock()

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Calls returns the number of ReadAt calls so far.
func (s *CountingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Span returns the half-open byte range [lo, hi) touched by reads, or
// (-1, 0) if nothing was read.
func (s *CountingSource) Span() (lo, hi int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lo, s.hi
}
