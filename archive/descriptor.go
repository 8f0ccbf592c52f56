package archive

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/internal/pathutil"
	"github.com/meigma/pnp/manifest"
)

// DescriptorVersion is the descriptor format written by EncodeDescriptor.
const DescriptorVersion = 1

// Descriptor framing lines. Every line between them starts with
// descriptorLinePrefix, which is a comment in most script languages, so the
// block can sit inside arbitrary loader text.
const (
	descriptorBegin      = "#pnp:descriptor"
	descriptorEnd        = "#pnp:end"
	descriptorLinePrefix = "# "
)

// ErrInvalidContainer is returned when an artifact's framing cannot be parsed.
var ErrInvalidContainer = errors.New("pnp: invalid container")

// BootEntry is an entry executed when the container is loaded.
type BootEntry struct {
	Name    string
	Segment manifest.Segment
}

// Descriptor is everything a loader needs to find its way around the
// container: how entries are compressed, how the data section is embedded,
// where the manifest is, and which entries to execute on load.
type Descriptor struct {
	Version   int
	Codec     codec.Kind
	Layout    Layout
	Manifest  manifest.Segment
	Bootstrap []BootEntry
}

type descriptorDoc struct {
	Version   int              `yaml:"version"`
	Codec     string           `yaml:"codec"`
	Layout    string           `yaml:"layout"`
	Manifest  manifest.Segment `yaml:"manifest,flow"`
	Bootstrap []bootDoc        `yaml:"bootstrap,omitempty"`
}

type bootDoc struct {
	Name   string `yaml:"name"`
	Offset uint64 `yaml:"offset"`
	Length uint64 `yaml:"length"`
}

// EncodeDescriptor renders d as a framed block suitable for embedding in
// loader text.
func EncodeDescriptor(d Descriptor) ([]byte, error) {
	doc := descriptorDoc{
		Version:  d.Version,
		Codec:    d.Codec.String(),
		Layout:   d.Layout.String(),
		Manifest: d.Manifest,
	}
	if doc.Version == 0 {
		doc.Version = DescriptorVersion
	}
	for _, b := range d.Bootstrap {
		doc.Bootstrap = append(doc.Bootstrap, bootDoc{Name: b.Name, Offset: b.Segment.Offset, Length: b.Segment.Length})
	}

	body, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(descriptorBegin + "\n")
	for _, line := range strings.Split(strings.TrimRight(string(body), "\n"), "\n") {
		buf.WriteString(descriptorLinePrefix + line + "\n")
	}
	buf.WriteString(descriptorEnd + "\n")
	return buf.Bytes(), nil
}

// DecodeDescriptor parses the framed block produced by EncodeDescriptor.
// Text outside the block is ignored; exactly one block must be present.
func DecodeDescriptor(text []byte) (Descriptor, error) {
	body, err := extractDescriptor(text)
	if err != nil {
		return Descriptor{}, err
	}

	var doc descriptorDoc
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return Descriptor{}, fmt.Errorf("%w: descriptor: %v", ErrInvalidContainer, err)
	}
	if doc.Version != DescriptorVersion {
		return Descriptor{}, fmt.Errorf("%w: unsupported descriptor version %d", ErrInvalidContainer, doc.Version)
	}

	kind, err := codec.ParseKind(doc.Codec)
	if err != nil {
		return Descriptor{}, err
	}
	layout, err := ParseLayout(doc.Layout)
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{
		Version:  doc.Version,
		Codec:    kind,
		Layout:   layout,
		Manifest: doc.Manifest,
	}
	for _, b := range doc.Bootstrap {
		if !pathutil.IsClean(b.Name) {
			return Descriptor{}, fmt.Errorf("%w: bootstrap name %q is not canonical", ErrInvalidContainer, b.Name)
		}
		d.Bootstrap = append(d.Bootstrap, BootEntry{
			Name:    b.Name,
			Segment: manifest.Segment{Offset: b.Offset, Length: b.Length},
		})
	}
	return d, nil
}

// extractDescriptor returns the YAML body of the single descriptor block.
func extractDescriptor(text []byte) ([]byte, error) {
	var (
		body   bytes.Buffer
		inside bool
		blocks int
	)
	for _, line := range strings.Split(string(text), "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case line == descriptorBegin:
			if inside {
				return nil, fmt.Errorf("%w: nested descriptor block", ErrInvalidContainer)
			}
			inside = true
			blocks++
		case line == descriptorEnd && inside:
			inside = false
		case inside:
			if line == strings.TrimSpace(descriptorLinePrefix) {
				body.WriteByte('\n')
				continue
			}
			rest, ok := strings.CutPrefix(line, descriptorLinePrefix)
			if !ok {
				return nil, fmt.Errorf("%w: malformed descriptor line %q", ErrInvalidContainer, line)
			}
			body.WriteString(rest)
			body.WriteByte('\n')
		}
	}
	switch {
	case inside:
		return nil, fmt.Errorf("%w: unterminated descriptor block", ErrInvalidContainer)
	case blocks == 0:
		return nil, fmt.Errorf("%w: missing descriptor block", ErrInvalidContainer)
	case blocks > 1:
		return nil, fmt.Errorf("%w: %d descriptor blocks", ErrInvalidContainer, blocks)
	}
	return body.Bytes(), nil
}
