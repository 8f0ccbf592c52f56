package vfs_test

import (
	"bytes"
	"io"
	"io/fs"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pnp/archive"
	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/internal/testutil"
	"github.com/meigma/pnp/manifest"
	"github.com/meigma/pnp/vfs"
)

type entry struct {
	name string
	data string
}

// buildArchive writes entries with c after prefix and returns the source
// bytes and manifest.
func buildArchive(t *testing.T, c codec.Codec, prefix string, entries ...entry) ([]byte, *manifest.Manifest) {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString(prefix)
	w, err := archive.NewWriter(&buf, c)
	require.NoError(t, err)

	m := manifest.New()
	for _, e := range entries {
		seg, err := w.WriteEntry(e.name, []byte(e.data))
		require.NoError(t, err)
		require.NoError(t, m.Set(manifest.CleanPath(e.name), seg))
	}
	return buf.Bytes(), m
}

func register(t *testing.T, fsys *vfs.FileSystem, name string, c codec.Codec, entries ...entry) {
	t.Helper()
	src, m := buildArchive(t, c, "", entries...)
	require.NoError(t, fsys.Register(name, bytes.NewReader(src), c, 0, m))
}

func TestOpenNone(t *testing.T) {
	t.Parallel()

	c := codec.MustNew(codec.KindNone)
	src, m := buildArchive(t, c, "", entry{"/a.txt", "hello"}, entry{"/b.txt", "world"})

	a, _ := m.Lookup("/a.txt")
	b, _ := m.Lookup("/b.txt")
	assert.Equal(t, manifest.Segment{Offset: 0, Length: 5}, a)
	assert.Equal(t, manifest.Segment{Offset: 5, Length: 5}, b)

	fsys := vfs.New()
	require.NoError(t, fsys.Register("x", bytes.NewReader(src), c, 0, m))

	f, err := fsys.Open("pnp://x/a.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Zero(t, mustSeek(t, f, 0, io.SeekStart))
}

func TestOpenAllCodecs(t *testing.T) {
	t.Parallel()

	entries := []entry{
		{"/empty", ""},
		{"/src/main.php", "<?php echo 'hi';"},
		{"/bin/blob", string(bytes.Repeat([]byte{0, 1, 2, 0xff}, 1024))},
	}
	for _, kind := range codec.Kinds() {
		c := codec.MustNew(kind)
		if !c.Available() {
			continue
		}
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()

			prefix := "#!/usr/bin/env pnp\nloader text\n"
			src, m := buildArchive(t, c, prefix, entries...)
			fsys := vfs.New()
			require.NoError(t, fsys.Register("app", bytes.NewReader(src), c, int64(len(prefix)), m))

			for _, e := range entries {
				got, err := fsys.ReadFile("pnp://app" + e.name)
				require.NoError(t, err, e.name)
				assert.Equal(t, e.data, string(got), e.name)
			}
		})
	}
}

func TestResolveNormalization(t *testing.T) {
	t.Parallel()

	fsys := vfs.New()
	register(t, fsys, "x", codec.MustNew(codec.KindNone),
		entry{"/b", "b"}, entry{"/etc/passwd", "root"}, entry{"/dir/file", "f"})

	tests := []struct {
		path string
		key  string
	}{
		{"pnp://x/a/../b", "/b"},
		{"pnp://x/../../etc/passwd", "/etc/passwd"},
		{"pnp://x//dir/./file", "/dir/file"},
		{`pnp://x/dir\file`, "/dir/file"},
		{`pnp://x/dir\..\b`, "/b"},
		{"pnp://x/dir/file/", "/dir/file"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			h, key, err := fsys.Resolve(tt.path)
			require.NoError(t, err)
			assert.Equal(t, "x", h.Name)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	t.Parallel()

	fsys := vfs.New()
	register(t, fsys, "x", codec.MustNew(codec.KindNone), entry{"/a.txt", "hello"})
	before, _ := fsys.Handle("x")

	for _, p := range []string{"pnp://x/missing", "pnp://y/a.txt", "pnp://x", "pnp://xa.txt"} {
		_, err := fsys.Open(p)
		require.ErrorIs(t, err, vfs.ErrNotFound, p)
		require.ErrorIs(t, err, fs.ErrNotExist, p)
		assert.False(t, fsys.Exists(p), p)
	}

	after, _ := fsys.Handle("x")
	assert.Same(t, before, after)
	assert.Equal(t, []string{"x"}, fsys.Names())
	assert.Equal(t, 1, after.Manifest.Len())
}

func TestResolveInvalidScheme(t *testing.T) {
	t.Parallel()

	fsys := vfs.New()
	_, _, err := fsys.Resolve("file:///etc/passwd")
	require.ErrorIs(t, err, vfs.ErrInvalidPath)
	require.ErrorIs(t, err, fs.ErrInvalid)
}

func TestResolveOrder(t *testing.T) {
	t.Parallel()

	none := codec.MustNew(codec.KindNone)
	fsys := vfs.New()
	register(t, fsys, "a", none, entry{"/b/shared", "from a"}, entry{"/b/only-a", "a"})
	register(t, fsys, "a/b", none, entry{"/shared", "from a/b"}, entry{"/only-ab", "ab"})

	got, err := fsys.ReadFile("pnp://a/b/shared")
	require.NoError(t, err)
	assert.Equal(t, "from a", string(got), "first registered name wins")

	got, err = fsys.ReadFile("pnp://a/b/only-ab")
	require.NoError(t, err)
	assert.Equal(t, "ab", string(got), "later candidates are tried when the first misses")
}

func TestRegisterReplaceKeepsPosition(t *testing.T) {
	t.Parallel()

	none := codec.MustNew(codec.KindNone)
	fsys := vfs.New()
	register(t, fsys, "one", none, entry{"/f", "old"})
	register(t, fsys, "two", none, entry{"/f", "two"})
	register(t, fsys, "one", none, entry{"/f", "new"})

	assert.Equal(t, []string{"one", "two"}, fsys.Names())
	got, err := fsys.ReadFile("pnp://one/f")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestRegisterUnavailableCodec(t *testing.T) {
	t.Parallel()

	none := codec.MustNew(codec.KindNone)
	fsys := vfs.New()
	register(t, fsys, "x", none, entry{"/f", "kept"})
	before, _ := fsys.Handle("x")

	src, m := buildArchive(t, none, "", entry{"/f", "lost"})
	err := fsys.Register("x", bytes.NewReader(src), codec.Disabled(codec.KindBzip2), 0, m)
	require.ErrorIs(t, err, codec.ErrUnavailable)
	err = fsys.Register("y", bytes.NewReader(src), codec.Disabled(codec.KindGzip), 0, m)
	require.ErrorIs(t, err, codec.ErrUnavailable)

	after, _ := fsys.Handle("x")
	assert.Same(t, before, after)
	assert.Equal(t, []string{"x"}, fsys.Names())
}

func TestRegisterInvalid(t *testing.T) {
	t.Parallel()

	none := codec.MustNew(codec.KindNone)
	src, m := buildArchive(t, none, "", entry{"/f", "x"})
	fsys := vfs.New()

	tests := []struct {
		name   string
		handle string
		source io.ReaderAt
		m      *manifest.Manifest
		base   int64
	}{
		{"empty name", "", bytes.NewReader(src), m, 0},
		{"trailing slash", "x/", bytes.NewReader(src), m, 0},
		{"nil source", "x", nil, m, 0},
		{"nil manifest", "x", bytes.NewReader(src), nil, 0},
		{"negative base", "x", bytes.NewReader(src), m, -1},
	}
	for _, tt := range tests {
		err := fsys.Register(tt.handle, tt.source, none, tt.base, tt.m)
		require.ErrorIs(t, err, vfs.ErrInvalidHandle, tt.name)
	}
	assert.Empty(t, fsys.Names())
}

func TestUnregisterKeepsOpenFiles(t *testing.T) {
	t.Parallel()

	fsys := vfs.New()
	register(t, fsys, "x", codec.MustNew(codec.KindBase64), entry{"/a.txt", "hello"})

	f, err := fsys.Open("pnp://x/a.txt")
	require.NoError(t, err)
	fsys.Unregister("x")
	fsys.Unregister("x")

	_, err = fsys.Open("pnp://x/a.txt")
	require.ErrorIs(t, err, vfs.ErrNotFound)

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestTeardown(t *testing.T) {
	t.Parallel()

	none := codec.MustNew(codec.KindNone)
	fsys := vfs.New(vfs.WithEntryCache(4))
	register(t, fsys, "x", none, entry{"/a", "a"})
	register(t, fsys, "y", none, entry{"/b", "b"})
	_, err := fsys.ReadFile("pnp://x/a")
	require.NoError(t, err)

	fsys.Teardown()
	assert.Empty(t, fsys.Names())
	_, err = fsys.Open("pnp://x/a")
	require.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestOpenIndependentBuffers(t *testing.T) {
	t.Parallel()

	fsys := vfs.New()
	register(t, fsys, "x", codec.MustNew(codec.KindNone), entry{"/a", "abcdef"})

	f1, err := fsys.Open("pnp://x/a")
	require.NoError(t, err)
	f2, err := fsys.Open("pnp://x/a")
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = f1.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), f1.Tell())
	assert.Zero(t, f2.Tell())
}

func TestOpenReadsOnlySegment(t *testing.T) {
	t.Parallel()

	c := codec.MustNew(codec.KindGzip)
	if !c.Available() {
		t.Skip("gzip compiled out")
	}
	prefix := "prefix-bytes\n"
	src, m := buildArchive(t, c, prefix, entry{"/a", "first"}, entry{"/b", "second entry"}, entry{"/c", "third"})
	counter := testutil.NewCountingSource(src)

	fsys := vfs.New()
	require.NoError(t, fsys.Register("x", counter, c, int64(len(prefix)), m))

	got, err := fsys.ReadFile("pnp://x/b")
	require.NoError(t, err)
	assert.Equal(t, "second entry", string(got))

	seg, _ := m.Lookup("/b")
	start := int64(len(prefix)) + int64(seg.Offset)
	lo, hi := counter.Span()
	assert.Equal(t, start, lo)
	assert.Equal(t, start+int64(seg.Length), hi)
}

func TestOpenShortSource(t *testing.T) {
	t.Parallel()

	c := codec.MustNew(codec.KindNone)
	src, m := buildArchive(t, c, "", entry{"/a", "hello"}, entry{"/b", "world"})

	fsys := vfs.New()
	require.NoError(t, fsys.Register("x", bytes.NewReader(src[:7]), c, 0, m))

	_, err := fsys.Open("pnp://x/b")
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	got, err := fsys.ReadFile("pnp://x/a")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestOpenDecodeError(t *testing.T) {
	t.Parallel()

	none := codec.MustNew(codec.KindNone)
	src, m := buildArchive(t, none, "", entry{"/a", "this is not base64!"})

	fsys := vfs.New()
	require.NoError(t, fsys.Register("x", bytes.NewReader(src), codec.MustNew(codec.KindBase64), 0, m))

	_, err := fsys.Open("pnp://x/a")
	require.ErrorIs(t, err, codec.ErrDecode)
}

func TestStatPlaceholder(t *testing.T) {
	t.Parallel()

	fsys := vfs.New()
	register(t, fsys, "x", codec.MustNew(codec.KindNone), entry{"/dir/a.txt", "hello"})

	info, err := fsys.Stat("pnp://x/dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.Name())
	assert.Zero(t, info.Size())
	assert.Equal(t, fs.FileMode(0o444), info.Mode())
	assert.True(t, info.ModTime().IsZero())
	assert.False(t, info.IsDir())
	assert.True(t, fsys.Exists("pnp://x/dir/a.txt"))

	_, err = fsys.Stat("pnp://x/dir/b.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestEntryCache(t *testing.T) {
	t.Parallel()

	c := codec.MustNew(codec.KindBase64)
	src, m := buildArchive(t, c, "", entry{"/a", "cached"})
	counter := testutil.NewCountingSource(src)

	fsys := vfs.New(vfs.WithEntryCache(8))
	require.NoError(t, fsys.Register("x", counter, c, 0, m))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := fsys.ReadFile("pnp://x/a")
			assert.NoError(t, err)
			assert.Equal(t, "cached", string(got))
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, counter.Calls(), 2)

	// Callers own their buffers.
	got, err := fsys.ReadFile("pnp://x/a")
	require.NoError(t, err)
	got[0] = 'X'
	again, err := fsys.ReadFile("pnp://x/a")
	require.NoError(t, err)
	assert.Equal(t, "cached", string(again))

	// Re-registering under the same name does not serve stale entries.
	register(t, fsys, "x", c, entry{"/a", "fresh"})
	got, err = fsys.ReadFile("pnp://x/a")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pnp://app/src/a.php", vfs.Path("app", "src/./a.php"))
	assert.Equal(t, "pnp://app/", vfs.Path("app", ""))

	rest, err := vfs.ParsePath("pnp://app/a")
	require.NoError(t, err)
	assert.Equal(t, "app/a", rest)
}

func mustSeek(t *testing.T, s io.Seeker, off int64, whence int) int64 {
	t.Helper()
	pos, err := s.Seek(off, whence)
	require.NoError(t, err)
	return pos
}
