/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"fmt"
	"maps"
	"slices"
)

// stringLiteral is unexported so that templates can only be untyped string
// constants written in this module, never runtime values.
type stringLiteral string

// Prompt is an immutable template with named {{placeholders}}. Each Bind
// call returns a copy with one more placeholder filled in.
type Prompt struct {
	template string
	bindings map[string]binding
}

// NewPrompt parses template and records its placeholders as unbound.
func NewPrompt(template stringLiteral) (*Prompt, error) {
	bindings := make(map[string]binding)
	tmpl, err := walkTemplate(string(template), func(name string) (string, error) {
		bindings[name] = unbound(name)
		return "{{" + name + "}}", nil
	})
	if err != nil {
		return nil, err
	}
	return &Prompt{template: tmpl, bindings: bindings}, nil
}

// MustNewPrompt is NewPrompt for package-level templates.
func MustNewPrompt(template stringLiteral) *Prompt {
	p, err := NewPrompt(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Bindings returns the placeholder names in sorted order.
func (p *Prompt) Bindings() []string {
	return slices.Sorted(maps.Keys(p.bindings))
}

func (p *Prompt) bind(name string, b binding) (*Prompt, error) {
	cur, ok := p.bindings[name]
	if !ok {
		return nil, fmt.Errorf("placeholder %q not found in template", name)
	}
	if _, free := cur.(unbound); !free {
		return nil, fmt.Errorf("placeholder %q already bound", name)
	}
	next := &Prompt{template: p.template, bindings: maps.Clone(p.bindings)}
	next.bindings[name] = b
	return next, nil
}

// BindStringLiteral fills name with a constant from the program.
func (p *Prompt) BindStringLiteral(name string, value stringLiteral) (*Prompt, error) {
	return p.bind(name, text(value))
}

// BindText fills name with runtime text such as a path or a count.
func (p *Prompt) BindText(name, value string) (*Prompt, error) {
	return p.bind(name, text(value))
}

// BindFenced fills name with body inside a Markdown code fence tagged lang.
func (p *Prompt) BindFenced(name, lang, body string) (*Prompt, error) {
	return p.bind(name, fenced{lang: lang, body: body})
}

// BindXML fills name with the indented XML encoding of data.
func (p *Prompt) BindXML(name string, data any) (*Prompt, error) {
	return p.bind(name, marshaled{format: "xml", data: data})
}

// BindJSON fills name with the indented JSON encoding of data.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	return p.bind(name, marshaled{format: "json", data: data})
}

// BindYAML fills name with the YAML encoding of data.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.bind(name, marshaled{format: "yaml", data: data})
}

// Build renders the prompt. It fails if any placeholder is unbound or a
// value cannot be encoded.
func (p *Prompt) Build() (string, error) {
	values := make(map[string]string, len(p.bindings))
	for name, b := range p.bindings {
		v, err := b.value()
		if err != nil {
			return "", err
		}
		values[name] = v
	}
	return walkTemplate(p.template, func(name string) (string, error) {
		return values[name], nil
	})
}

// Bindable is implemented by request types that know how to fill a prompt
// from their own fields.
type Bindable interface {
	Bind(p *Prompt) (*Prompt, error)
}

// BindAll applies each binder in order.
func BindAll(p *Prompt, binders ...func(*Prompt) (*Prompt, error)) (*Prompt, error) {
	var err error
	for _, b := range binders {
		if p, err = b(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}
