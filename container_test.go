package pnp_test

import (
	"bytes"
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pnp"
	"github.com/meigma/pnp/archive"
	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/internal/testutil"
	"github.com/meigma/pnp/loader"
	"github.com/meigma/pnp/manifest"
	"github.com/meigma/pnp/vfs"
)

type recordingSink struct {
	names []string
	data  map[string]string
	fail  string
}

func (s *recordingSink) Execute(_ context.Context, data []byte, name string) error {
	if name == s.fail {
		return errors.New("execution failed")
	}
	s.names = append(s.names, name)
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[name] = string(data)
	return nil
}

func TestOpenSeekableFile(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteTree(t, projectFiles)
	out := filepath.Join(t.TempDir(), "app.pnp")
	c := codec.MustNew(codec.KindGzip)
	if !c.Available() {
		t.Skip("gzip compiled out")
	}
	_, err := pnp.PackFile(context.Background(), out,
		pnp.PackWithCodec(c),
		pnp.PackWithFile("/data/note.txt", filepath.Join(dir, "data/note.txt")),
	)
	require.NoError(t, err)

	container, err := pnp.Open(out)
	require.NoError(t, err)
	assert.Equal(t, codec.KindGzip, container.Codec().Kind())
	assert.Equal(t, archive.LayoutSeekable, container.Descriptor.Layout)

	fsys := vfs.New()
	require.NoError(t, container.Register(fsys, "app"))
	f, err := fsys.Open("pnp://app/data/note.txt")
	require.NoError(t, err)

	require.NoError(t, container.Close())
	require.NoError(t, container.Close())

	// Files opened before Close stay readable.
	buf := make([]byte, f.Len())
	_, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, projectFiles["data/note.txt"], string(buf))

	_, err = pnp.Open(filepath.Join(t.TempDir(), "missing.pnp"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenURL(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteTree(t, projectFiles)
	for _, layout := range []archive.Layout{archive.LayoutSeekable, archive.LayoutStreamable} {
		t.Run(layout.String(), func(t *testing.T) {
			t.Parallel()

			artifact, _ := packProject(t, dir, pnp.PackWithCodec(codec.MustNew(codec.KindBase64)), pnp.PackWithLayout(layout))
			server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
				nethttp.ServeContent(w, r, "app.pnp", time.Time{}, bytes.NewReader(artifact))
			}))
			t.Cleanup(server.Close)

			container, err := pnp.OpenURL(context.Background(), server.URL)
			require.NoError(t, err)
			defer container.Close()

			got, err := container.ReadEntry("data/note.txt")
			require.NoError(t, err)
			assert.Equal(t, projectFiles["data/note.txt"], string(got))
		})
	}
}

func TestBootOrder(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteTree(t, projectFiles)
	vendor := filepath.Join(dir, "vendor/boot.php")
	artifact, _ := packProject(t, dir,
		pnp.PackWithLayout(archive.LayoutStreamable),
		pnp.PackWithDiscovery(staticDiscovery{bootstraps: []string{vendor}}),
		pnp.PackWithBootstrap(filepath.Join(dir, "src/lib.php")),
	)

	container, err := pnp.Read(bytes.NewReader(artifact))
	require.NoError(t, err)

	fsys := vfs.New()
	sink := &recordingSink{}
	require.NoError(t, container.Boot(context.Background(), fsys, "app", sink))

	want := []string{manifest.CleanPath(filepath.ToSlash(vendor)), "/src/main.php", "/src/lib.php"}
	assert.Equal(t, want, sink.names)
	assert.Equal(t, "<?php $booted=true;", sink.data[want[0]])
	assert.Equal(t, []string{"app"}, fsys.Names())
	assert.True(t, fsys.Exists("pnp://app/src/lib.php"))
}

func TestBootStopsOnError(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteTree(t, projectFiles)
	artifact, _ := packProject(t, dir, pnp.PackWithBootstrap(filepath.Join(dir, "src/lib.php")))
	container, err := pnp.Read(bytes.NewReader(artifact))
	require.NoError(t, err)

	sink := &recordingSink{fail: "/src/main.php"}
	err = container.Boot(context.Background(), vfs.New(), "app", sink)
	require.Error(t, err)
	assert.Empty(t, sink.names)

	var calls int
	err = container.Boot(context.Background(), vfs.New(), "app", pnp.ExecutionSinkFunc(
		func(context.Context, []byte, string) error { calls++; return nil }))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBootReassignedName(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteTree(t, map[string]string{"a.txt": "AAAA", "b.txt": "BBBB"})
	a := filepath.Join(dir, "a.txt")
	var out bytes.Buffer
	res, err := pnp.Pack(context.Background(), &out,
		pnp.PackWithFile("/main.txt", a),
		pnp.PackWithFile("/main.txt", filepath.Join(dir, "b.txt")),
		pnp.PackWithBootstrap(a),
	)
	require.NoError(t, err)

	own := manifest.CleanPath(filepath.ToSlash(a))
	require.Len(t, res.Descriptor.Bootstrap, 1)
	assert.Equal(t, own, res.Descriptor.Bootstrap[0].Name)

	container, err := pnp.Read(&out)
	require.NoError(t, err)
	sink := &recordingSink{}
	fsys := vfs.New()
	require.NoError(t, container.Boot(context.Background(), fsys, "app", sink))
	assert.Equal(t, []string{own}, sink.names)
	assert.Equal(t, "AAAA", sink.data[own])

	main, err := fsys.ReadFile("pnp://app/main.txt")
	require.NoError(t, err)
	assert.Equal(t, "BBBB", string(main))
}

// frame builds an artifact around a hand-made data section.
func frame(t *testing.T, data []byte, desc archive.Descriptor) []byte {
	t.Helper()
	text, err := loader.Default().Generate(loader.Spec{Descriptor: desc})
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = archive.WriteContainer(&out, archive.ContainerSpec{Loader: text, Layout: desc.Layout, Data: bytes.NewReader(data)})
	require.NoError(t, err)
	return out.Bytes()
}

func TestReadInvalidManifest(t *testing.T) {
	t.Parallel()

	m := manifest.New()
	require.NoError(t, m.Set("/a", manifest.Segment{Offset: 0, Length: 1 << 20}))
	encoded := manifest.Encode(m)

	tests := []struct {
		name string
		data []byte
		desc archive.Descriptor
	}{
		{"garbage", []byte("garbage"), archive.Descriptor{Manifest: manifest.Segment{Offset: 0, Length: 7}}},
		{"past end", []byte("abc"), archive.Descriptor{Manifest: manifest.Segment{Offset: 1, Length: 9}}},
		{"segment out of range", encoded, archive.Descriptor{Manifest: manifest.Segment{Offset: 0, Length: uint64(len(encoded))}}},
		{"bad base64", []byte("!!!!"), archive.Descriptor{Codec: codec.KindBase64, Manifest: manifest.Segment{Offset: 0, Length: 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := pnp.Read(bytes.NewReader(frame(t, tt.data, tt.desc)))
			require.ErrorIs(t, err, pnp.ErrInvalidManifest)
		})
	}
}

func TestReadBootstrapMismatch(t *testing.T) {
	t.Parallel()

	m := manifest.New()
	require.NoError(t, m.Set("/a", manifest.Segment{Offset: 0, Length: 1}))
	encoded := manifest.Encode(m)
	data := append([]byte("x"), encoded...)

	artifact := frame(t, data, archive.Descriptor{
		Manifest:  manifest.Segment{Offset: 1, Length: uint64(len(encoded))},
		Bootstrap: []archive.BootEntry{{Name: "/b", Segment: manifest.Segment{Offset: 0, Length: 1}}},
	})
	_, err := pnp.Read(bytes.NewReader(artifact))
	require.ErrorIs(t, err, pnp.ErrInvalidManifest)
}

func TestReadInvalidContainer(t *testing.T) {
	t.Parallel()

	_, err := pnp.Read(bytes.NewReader([]byte("#!/bin/sh\necho not a container\n")))
	require.ErrorIs(t, err, pnp.ErrInvalidContainer)
}
