package archive

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/manifest"
)

func testDescriptor(layout Layout) Descriptor {
	return Descriptor{
		Codec:    codec.KindGzip,
		Layout:   layout,
		Manifest: manifest.Segment{Offset: 10, Length: 42},
		Bootstrap: []BootEntry{
			{Name: "/vendor/autoload.php", Segment: manifest.Segment{Offset: 0, Length: 4}},
			{Name: "/main.php", Segment: manifest.Segment{Offset: 4, Length: 6}},
		},
	}
}

func testLoader(t *testing.T, layout Layout) []byte {
	t.Helper()
	block, err := EncodeDescriptor(testDescriptor(layout))
	require.NoError(t, err)
	return append([]byte("<?php // loader\n"), block...)
}

func TestDescriptorRoundTrip(t *testing.T) {
	t.Parallel()

	want := testDescriptor(LayoutStreamable)
	block, err := EncodeDescriptor(want)
	require.NoError(t, err)

	for _, line := range strings.Split(strings.TrimSpace(string(block)), "\n") {
		assert.True(t, strings.HasPrefix(line, "#"), line)
	}

	got, err := DecodeDescriptor(append([]byte("prelude\n"), append(block, "trailer\n"...)...))
	require.NoError(t, err)
	want.Version = DescriptorVersion
	assert.Equal(t, want, got)
}

func TestDecodeDescriptorErrors(t *testing.T) {
	t.Parallel()

	block, err := EncodeDescriptor(testDescriptor(LayoutSeekable))
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
	}{
		{"missing", "no descriptor here\n"},
		{"twice", string(block) + string(block)},
		{"unterminated", "#pnp:descriptor\n# version: 1\n"},
		{"bad line", "#pnp:descriptor\nversion: 1\n#pnp:end\n"},
		{"bad version", "#pnp:descriptor\n# version: 7\n# codec: none\n# layout: seekable\n#pnp:end\n"},
		{"bad codec", "#pnp:descriptor\n# version: 1\n# codec: lzma\n# layout: seekable\n#pnp:end\n"},
		{"bad layout", "#pnp:descriptor\n# version: 1\n# codec: none\n# layout: sideways\n#pnp:end\n"},
		{"bad bootstrap", "#pnp:descriptor\n# version: 1\n# codec: none\n# layout: seekable\n# bootstrap:\n#   - name: a/../b\n#pnp:end\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeDescriptor([]byte(tt.text))
			require.Error(t, err)
		})
	}
}

func TestContainerSeekable(t *testing.T) {
	t.Parallel()

	data := []byte("\x00binary\ndata\n__PNP_DATA__\n")
	var out bytes.Buffer
	n, err := WriteContainer(&out, ContainerSpec{
		Shebang: "#!/usr/bin/env pnp",
		Loader:  testLoader(t, LayoutSeekable),
		Layout:  LayoutSeekable,
		Data:    bytes.NewReader(data),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(out.Len()), n)
	assert.True(t, strings.HasPrefix(out.String(), "#!/usr/bin/env pnp\n"))

	br := bufio.NewReader(bytes.NewReader(out.Bytes()))
	prefix, err := ReadPrefix(br)
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/env pnp", prefix.Shebang)
	assert.Equal(t, LayoutSeekable, prefix.Descriptor.Layout)
	assert.Equal(t, data, out.Bytes()[prefix.Length:])
	assert.Contains(t, string(prefix.Loader), "<?php // loader")
}

func TestContainerStreamable(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef, '\n'}, 100)
	var out bytes.Buffer
	_, err := WriteContainer(&out, ContainerSpec{
		Loader: testLoader(t, LayoutStreamable),
		Layout: LayoutStreamable,
		Data:   bytes.NewReader(data),
	})
	require.NoError(t, err)

	br := bufio.NewReader(bytes.NewReader(out.Bytes()))
	prefix, err := ReadPrefix(br)
	require.NoError(t, err)
	assert.Empty(t, prefix.Shebang)
	assert.Equal(t, LayoutStreamable, prefix.Descriptor.Layout)

	got, err := ReadLiteral(br)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteContainerRejects(t *testing.T) {
	t.Parallel()

	seekable := testLoader(t, LayoutSeekable)
	tests := []struct {
		name string
		spec ContainerSpec
	}{
		{"multiline shebang", ContainerSpec{Shebang: "#!a\nb", Loader: seekable}},
		{"marker shebang", ContainerSpec{Shebang: Marker, Loader: seekable}},
		{"shebang without #!", ContainerSpec{Shebang: "/usr/bin/env pnp", Loader: seekable}},
		{"loader starts with #!", ContainerSpec{Loader: append([]byte("#!/bin/sh\n"), seekable...)}},
		{"no descriptor", ContainerSpec{Loader: []byte("echo hi\n")}},
		{"layout mismatch", ContainerSpec{Loader: seekable, Layout: LayoutStreamable}},
		{"marker in loader", ContainerSpec{Loader: append(append([]byte{}, seekable...), "__PNP_DATA__\n"...)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			tt.spec.Data = bytes.NewReader(nil)
			_, err := WriteContainer(&out, tt.spec)
			require.ErrorIs(t, err, ErrInvalidLoader)
			assert.Zero(t, out.Len())
		})
	}
}

func TestReadPrefixErrors(t *testing.T) {
	t.Parallel()

	_, err := ReadPrefix(bufio.NewReader(strings.NewReader("#!/bin/sh\necho no marker\n")))
	require.ErrorIs(t, err, ErrInvalidContainer)

	_, err = ReadPrefix(bufio.NewReader(strings.NewReader("__PNP_DATA__\n")))
	require.ErrorIs(t, err, ErrInvalidContainer)
}

func TestReadLiteralInvalid(t *testing.T) {
	t.Parallel()

	_, err := ReadLiteral(bufio.NewReader(strings.NewReader("!!!not base64\n")))
	require.ErrorIs(t, err, ErrInvalidContainer)
}

func TestParseLayout(t *testing.T) {
	t.Parallel()

	l, err := ParseLayout("streamable")
	require.NoError(t, err)
	assert.Equal(t, LayoutStreamable, l)

	l, err = ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutSeekable, l)

	_, err = ParseLayout("sideways")
	require.ErrorIs(t, err, ErrInvalidContainer)
}
