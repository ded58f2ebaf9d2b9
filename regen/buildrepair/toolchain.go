/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildrepair

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
)

// Format is the syntax of a manifest, used to validate corrections.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTOML  Format = "toml"
	FormatXML   Format = "xml"
	FormatGoMod Format = "gomod"
	FormatText  Format = "text"
)

// Toolchain describes how to install the dependencies declared by one kind
// of manifest.
type Toolchain struct {
	Name string
	// Manifest is the base name of the manifest file.
	Manifest string
	// Install runs in the manifest's directory.
	Install []string
	// Lockfile is the base name of the generated lock artifact, if any.
	Lockfile string
	Format   Format
	// Preserve lists top-level keys a correction may not drop when the
	// current manifest has them.
	Preserve []string
	// Shape, when set, is reflected into a JSON Schema for correction
	// prompts.
	Shape any
	// Build, when set, compiles the sources once the install succeeds.
	Build []string
	// BuildIf reports whether Build applies to an installed manifest. Nil
	// means always.
	BuildIf func(manifest string) bool
}

// Command returns the install command as a single string.
func (t Toolchain) Command() string {
	return strings.Join(t.Install, " ")
}

// BuildCommand returns the build command as a single string.
func (t Toolchain) BuildCommand() string {
	return strings.Join(t.Build, " ")
}

// Builds reports whether the build stage runs for manifest content.
func (t Toolchain) Builds(manifest string) bool {
	if len(t.Build) == 0 {
		return false
	}
	return t.BuildIf == nil || t.BuildIf(manifest)
}

// hasScript reports whether a package.json declares the named script.
func hasScript(name string) func(string) bool {
	return func(manifest string) bool {
		var pj packageJSON
		if err := json.Unmarshal([]byte(manifest), &pj); err != nil {
			return false
		}
		_, ok := pj.Scripts[name]
		return ok
	}
}

// packageJSON documents the parts of package.json the correction prompt
// cares about.
type packageJSON struct {
	Name             string            `json:"name,omitempty" jsonschema:"description=Package name. Keep unchanged."`
	Version          string            `json:"version,omitempty"`
	Scripts          map[string]string `json:"scripts,omitempty" jsonschema:"description=Keep unchanged unless a script names a removed package."`
	Dependencies     map[string]string `json:"dependencies,omitempty" jsonschema:"description=Package name to semver range. Ranges must resolve to published versions."`
	DevDependencies  map[string]string `json:"devDependencies,omitempty" jsonschema:"description=Package name to semver range. Ranges must resolve to published versions."`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
}

var toolchains = map[string]Toolchain{
	"package.json": {
		Name:     "npm",
		Manifest: "package.json",
		Install:  []string{"npm", "install", "--legacy-peer-deps"},
		Lockfile: "package-lock.json",
		Format:   FormatJSON,
		Preserve: []string{"name", "dependencies", "devDependencies", "scripts"},
		Shape:    &packageJSON{},
		Build:    []string{"npm", "run", "build"},
		BuildIf:  hasScript("build"),
	},
	"go.mod": {
		Name:     "go",
		Manifest: "go.mod",
		Install:  []string{"go", "mod", "tidy"},
		Lockfile: "go.sum",
		Format:   FormatGoMod,
		Build:    []string{"go", "build", "./..."},
	},
	"Cargo.toml": {
		Name:     "cargo",
		Manifest: "Cargo.toml",
		Install:  []string{"cargo", "generate-lockfile"},
		Lockfile: "Cargo.lock",
		Format:   FormatTOML,
		Preserve: []string{"package", "dependencies"},
		Build:    []string{"cargo", "check", "--quiet"},
	},
	"requirements.txt": {
		Name:     "pip",
		Manifest: "requirements.txt",
		Install:  []string{"pip", "install", "--dry-run", "-r", "requirements.txt"},
		Format:   FormatText,
	},
	"pom.xml": {
		Name:     "maven",
		Manifest: "pom.xml",
		Install:  []string{"mvn", "-q", "-B", "dependency:resolve"},
		Format:   FormatXML,
	},
}

// Lookup returns the toolchain for the manifest at slash-separated path p.
func Lookup(p string) (Toolchain, bool) {
	t, ok := toolchains[path.Base(p)]
	return t, ok
}

// Validate checks that correction is a well-formed manifest that keeps the
// preserved keys present in current.
func (t Toolchain) Validate(current, correction string) error {
	if strings.TrimSpace(correction) == "" {
		return errors.New("correction is empty")
	}
	switch t.Format {
	case FormatJSON:
		var cur, next map[string]any
		if err := json.Unmarshal([]byte(correction), &next); err != nil {
			return fmt.Errorf("correction is not a JSON object: %w", err)
		}
		if err := json.Unmarshal([]byte(current), &cur); err != nil {
			cur = nil
		}
		return t.preserved(cur, next)

	case FormatTOML:
		var cur, next map[string]any
		if err := toml.Unmarshal([]byte(correction), &next); err != nil {
			return fmt.Errorf("correction is not valid TOML: %w", err)
		}
		if err := toml.Unmarshal([]byte(current), &cur); err != nil {
			cur = nil
		}
		return t.preserved(cur, next)

	case FormatGoMod:
		f, err := modfile.ParseLax(t.Manifest, []byte(correction), nil)
		if err != nil {
			return fmt.Errorf("correction is not a valid go.mod: %w", err)
		}
		if f.Module == nil {
			return errors.New("correction has no module directive")
		}

	case FormatXML:
		var doc struct {
			XMLName xml.Name
		}
		if err := xml.Unmarshal([]byte(correction), &doc); err != nil {
			return fmt.Errorf("correction is not well-formed XML: %w", err)
		}
		if doc.XMLName.Local != "project" {
			return fmt.Errorf("correction root element is %q, wanted project", doc.XMLName.Local)
		}
	}
	return nil
}

func (t Toolchain) preserved(cur, next map[string]any) error {
	var missing []string
	for _, k := range t.Preserve {
		if _, had := cur[k]; !had {
			continue
		}
		if _, ok := next[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("correction drops required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}
