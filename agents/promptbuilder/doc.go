/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package promptbuilder renders prompt templates with typed placeholder
// bindings.
//
// Templates are string constants; values are bound by name and encoded
// according to the binding used. Code is bound with BindFenced so that
// backticks in file content cannot terminate the surrounding block.
//
//	var regenerate = promptbuilder.MustNewPrompt(`Refactor {{path}}:
//	{{code}}`)
//
//	p, err := regenerate.BindText("path", "src/App.tsx")
//	if err != nil { ... }
//	p, err = p.BindFenced("code", "tsx", body)
//	if err != nil { ... }
//	prompt, err := p.Build()
package promptbuilder
