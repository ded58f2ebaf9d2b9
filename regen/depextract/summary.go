/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package depextract

import (
	"fmt"
	"maps"
	"slices"

	"chainguard.dev/prrefine/regen/record"
	"gopkg.in/yaml.v3"
)

// Summary is the aggregated dependency surface of a pass. Manifest requests
// receive it instead of raw file bodies, so their context size tracks the
// number of dependencies rather than the size of the project.
type Summary struct {
	Dependencies []DependencyUse `yaml:"dependencies"`
}

// DependencyUse records where one dependency identifier appears.
type DependencyUse struct {
	Name       string   `yaml:"name"`
	DeclaredIn []string `yaml:"declared_in,omitempty"`
	UsedBy     []string `yaml:"used_by,omitempty"`
}

// Summarize folds per-file extraction results, keyed by path, into a
// Summary sorted by dependency name.
func Summarize(results map[string]Result) Summary {
	uses := make(map[string]*DependencyUse)
	for _, p := range slices.Sorted(maps.Keys(results)) {
		manifest := record.Classify(p) == record.KindManifest
		for _, dep := range results[p].Deps {
			u, ok := uses[dep]
			if !ok {
				u = &DependencyUse{Name: dep}
				uses[dep] = u
			}
			if manifest {
				u.DeclaredIn = append(u.DeclaredIn, p)
			} else {
				u.UsedBy = append(u.UsedBy, p)
			}
		}
	}

	s := Summary{Dependencies: make([]DependencyUse, 0, len(uses))}
	for _, name := range slices.Sorted(maps.Keys(uses)) {
		s.Dependencies = append(s.Dependencies, *uses[name])
	}
	return s
}

// Undeclared returns dependencies used by sources but declared by no
// manifest in the pass.
func (s Summary) Undeclared() []string {
	var out []string
	for _, u := range s.Dependencies {
		if len(u.DeclaredIn) == 0 && len(u.UsedBy) > 0 {
			out = append(out, u.Name)
		}
	}
	return out
}

// Render returns the YAML form of the summary as sent to the model.
func (s Summary) Render() (string, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshaling dependency summary: %w", err)
	}
	return string(b), nil
}
