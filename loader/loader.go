// Package loader renders the text that precedes a container's data section.
//
// Loader text is opaque to the container format except for one requirement:
// it embeds the descriptor block produced by [archive.EncodeDescriptor].
// Hosts that need a specific loader script implement [Generator]; [Template]
// renders a text/template with the sprig function library and a
// "descriptor" function.
package loader

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/meigma/pnp/archive"
)

//go:embed default.tmpl
var defaultText string

// Spec is the input to a Generator.
type Spec struct {
	// Descriptor must be embedded in the generated text.
	Descriptor archive.Descriptor

	// Shebang is the interpreter line that will precede the loader, if any.
	Shebang string

	// Vars carries host-defined template variables.
	Vars map[string]string
}

// Generator produces loader text for a container.
type Generator interface {
	Generate(spec Spec) ([]byte, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(spec Spec) ([]byte, error)

// Generate calls f(spec).
func (f GeneratorFunc) Generate(spec Spec) ([]byte, error) {
	return f(spec)
}

// Template is a Generator backed by text/template.
type Template struct {
	tmpl *template.Template
}

// NewTemplate parses text as a loader template. Besides the sprig functions,
// templates can call {{ descriptor .Descriptor }} to emit the descriptor
// block.
func NewTemplate(name, text string) (*Template, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Funcs(template.FuncMap{"descriptor": renderDescriptor}).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse loader template %s: %w", name, err)
	}
	return &Template{tmpl: tmpl}, nil
}

// Default returns the built-in loader template.
func Default() *Template {
	t, err := NewTemplate("default", defaultText)
	if err != nil {
		panic(err)
	}
	return t
}

// Generate implements Generator.
func (t *Template) Generate(spec Spec) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, spec); err != nil {
		return nil, fmt.Errorf("render loader %s: %w", t.tmpl.Name(), err)
	}
	return buf.Bytes(), nil
}

func renderDescriptor(d archive.Descriptor) (string, error) {
	block, err := archive.EncodeDescriptor(d)
	if err != nil {
		return "", err
	}
	return string(block), nil
}
