/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type binding interface {
	value() (string, error)
}

type unbound string

func (u unbound) value() (string, error) {
	return "", fmt.Errorf("unbound placeholder: %s", string(u))
}

type text string

func (t text) value() (string, error) {
	return string(t), nil
}

// fenced renders body inside a Markdown code fence. The fence is made
// longer than any backtick run in body so the block cannot be closed early.
type fenced struct {
	lang, body string
}

func (f fenced) value() (string, error) {
	fence := "```"
	for strings.Contains(f.body, fence) {
		fence += "`"
	}
	body := f.body
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return fence + f.lang + "\n" + body + fence, nil
}

type marshaled struct {
	format string
	data   any
}

func (m marshaled) value() (string, error) {
	var (
		b   []byte
		err error
	)
	switch m.format {
	case "xml":
		b, err = xml.MarshalIndent(m.data, "", "  ")
	case "json":
		b, err = json.MarshalIndent(m.data, "", "  ")
	case "yaml":
		b, err = yaml.Marshal(m.data)
	default:
		return "", fmt.Errorf("unknown format %q", m.format)
	}
	if err != nil {
		return "", fmt.Errorf("marshaling %s: %w", m.format, err)
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}
