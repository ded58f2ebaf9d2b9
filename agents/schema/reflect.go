/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema turns Go types that describe a manifest into JSON Schemas
// for correction prompts.
package schema

import "github.com/invopop/jsonschema"

// reflector inlines nested types so a prompt carries a single document.
// Manifests routinely hold keys a shape leaves out, so additional
// properties stay allowed.
var reflector = jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	AllowAdditionalProperties:  true,
	DoNotReference:             true,
}

// Reflect returns the JSON Schema of v, which should be a pointer to a
// struct.
func Reflect(v any) *jsonschema.Schema {
	return reflector.Reflect(v)
}

// ReflectType reflects the zero value of T.
func ReflectType[T any]() *jsonschema.Schema {
	var zero T
	return Reflect(&zero)
}
