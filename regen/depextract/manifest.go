/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package depextract

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
)

// npmSections are the package.json objects whose keys are dependencies.
var npmSections = []string{"dependencies", "devDependencies", "peerDependencies", "optionalDependencies"}

func parsePackageJSON(content string) ([]string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("decoding package.json: %w", err)
	}
	var deps []string
	for _, section := range npmSections {
		raw, ok := doc[section]
		if !ok {
			continue
		}
		var entries map[string]string
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", section, err)
		}
		deps = slices.AppendSeq(deps, maps.Keys(entries))
	}
	return deps, nil
}

var (
	npmSectionPattern = regexp.MustCompile(`"(?:dependencies|devDependencies|peerDependencies|optionalDependencies)"\s*:\s*\{([^}]*)\}`)
	jsonKeyPattern    = regexp.MustCompile(`"([^"]+)"\s*:`)
)

func scanPackageJSON(content string) []string {
	var deps []string
	for _, section := range npmSectionPattern.FindAllStringSubmatch(content, -1) {
		for _, m := range jsonKeyPattern.FindAllStringSubmatch(section[1], -1) {
			deps = append(deps, m[1])
		}
	}
	return deps
}

func parseTSConfig(content string) ([]string, error) {
	var doc struct {
		CompilerOptions struct {
			Types []string `json:"types"`
		} `json:"compilerOptions"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("decoding tsconfig.json: %w", err)
	}
	return typesPackages(doc.CompilerOptions.Types), nil
}

var (
	tsTypesPattern  = regexp.MustCompile(`"types"\s*:\s*\[([^\]]*)\]`)
	quotedPattern   = regexp.MustCompile(`["']([^"']+)["']`)
	gradleCoord     = regexp.MustCompile(`(?m)^\s*(?:implementation|api|compileOnly|runtimeOnly|testImplementation|testRuntimeOnly|annotationProcessor|kapt|compile|testCompile)\s*\(?\s*['"]([\w.\-]+):([\w.\-]+)(?::[^'"]*)?['"]`)
	pomDepPattern   = regexp.MustCompile(`(?s)<dependency>.*?<groupId>\s*([^<\s]+)\s*</groupId>.*?<artifactId>\s*([^<\s]+)\s*</artifactId>`)
	gemPattern      = regexp.MustCompile(`(?m)^\s*gem\s+['"]([^'"]+)['"]`)
	goRequireSingle = regexp.MustCompile(`(?m)^\s*require\s+([^\s(]+)\s+v\S+`)
	goRequireBlock  = regexp.MustCompile(`(?s)require\s*\((.*?)\)`)
	goRequireEntry  = regexp.MustCompile(`(?m)^\s*([^\s/]+\.[^\s]+)\s+v\S+`)
)

// scanTSConfig handles tsconfig files that carry comments or trailing
// commas, which encoding/json rejects.
func scanTSConfig(content string) []string {
	var types []string
	for _, m := range tsTypesPattern.FindAllStringSubmatch(content, -1) {
		for _, q := range quotedPattern.FindAllStringSubmatch(m[1], -1) {
			types = append(types, q[1])
		}
	}
	return typesPackages(types)
}

func typesPackages(types []string) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		if strings.HasPrefix(t, "@types/") {
			out = append(out, t)
			continue
		}
		out = append(out, "@types/"+t)
	}
	return out
}

type pomProject struct {
	XMLName      xml.Name        `xml:"project"`
	Dependencies []pomDependency `xml:"dependencies>dependency"`
	Managed      []pomDependency `xml:"dependencyManagement>dependencies>dependency"`
	Plugins      []pomDependency `xml:"build>plugins>plugin"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
}

func parsePOM(content string) ([]string, error) {
	var project pomProject
	if err := xml.Unmarshal([]byte(content), &project); err != nil {
		return nil, fmt.Errorf("decoding pom.xml: %w", err)
	}
	var deps []string
	for _, d := range slices.Concat(project.Dependencies, project.Managed, project.Plugins) {
		if d.ArtifactID == "" {
			continue
		}
		if d.GroupID == "" {
			deps = append(deps, d.ArtifactID)
			continue
		}
		deps = append(deps, d.GroupID+":"+d.ArtifactID)
	}
	return deps, nil
}

func scanPOM(content string) []string {
	var deps []string
	for _, m := range pomDepPattern.FindAllStringSubmatch(content, -1) {
		deps = append(deps, m[1]+":"+m[2])
	}
	return deps
}

func scanGradle(content string) []string {
	var deps []string
	for _, m := range gradleCoord.FindAllStringSubmatch(content, -1) {
		deps = append(deps, m[1]+":"+m[2])
	}
	return deps
}

func parseGoMod(content string) ([]string, error) {
	f, err := modfile.ParseLax("go.mod", []byte(content), nil)
	if err != nil {
		return nil, fmt.Errorf("parsing go.mod: %w", err)
	}
	deps := make([]string, 0, len(f.Require))
	for _, r := range f.Require {
		deps = append(deps, r.Mod.Path)
	}
	return deps, nil
}

func scanGoMod(content string) []string {
	var deps []string
	for _, m := range goRequireSingle.FindAllStringSubmatch(content, -1) {
		deps = append(deps, m[1])
	}
	for _, block := range goRequireBlock.FindAllStringSubmatch(content, -1) {
		for _, m := range goRequireEntry.FindAllStringSubmatch(block[1], -1) {
			deps = append(deps, m[1])
		}
	}
	return deps
}

func parseCargo(content string) ([]string, error) {
	var doc map[string]any
	if err := toml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("decoding Cargo.toml: %w", err)
	}
	var deps []string
	for _, table := range []string{"dependencies", "dev-dependencies", "build-dependencies"} {
		if entries, ok := doc[table].(map[string]any); ok {
			deps = slices.AppendSeq(deps, maps.Keys(entries))
		}
	}
	return deps, nil
}

func parsePyProject(content string) ([]string, error) {
	var doc struct {
		Project struct {
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies    map[string]any `toml:"dependencies"`
				DevDependencies map[string]any `toml:"dev-dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("decoding pyproject.toml: %w", err)
	}

	var deps []string
	for _, dep := range doc.Project.Dependencies {
		deps = append(deps, requirementName(dep))
	}
	for _, group := range doc.Project.OptionalDependencies {
		for _, dep := range group {
			deps = append(deps, requirementName(dep))
		}
	}
	for _, table := range []map[string]any{doc.Tool.Poetry.Dependencies, doc.Tool.Poetry.DevDependencies} {
		for name := range table {
			if name != "python" {
				deps = append(deps, name)
			}
		}
	}
	return deps, nil
}

// scanTOMLTables returns a fallback scanner that collects the keys of the
// named tables line by line.
func scanTOMLTables(tables ...string) func(string) []string {
	want := setOf(tables...)
	return func(content string) []string {
		var deps []string
		inTable := false
		scanner := bufio.NewScanner(strings.NewReader(content))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "" || strings.HasPrefix(line, "#"):
				continue
			case strings.HasPrefix(line, "["):
				_, inTable = want[strings.Trim(line, "[] ")]
			case inTable:
				key, _, ok := strings.Cut(line, "=")
				if key = strings.Trim(strings.TrimSpace(key), `"'`); ok && key != "python" {
					deps = append(deps, key)
				}
			}
		}
		return deps
	}
}

func parseRequirements(content string) ([]string, error) {
	var deps []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		// Options such as -r, -e and --index-url carry no package name.
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if name := requirementName(line); name != "" {
			deps = append(deps, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading requirements.txt: %w", err)
	}
	return deps, nil
}

// requirementName strips version specifiers, extras and markers from a PEP
// 508 requirement.
func requirementName(req string) string {
	req = strings.TrimSpace(req)
	if i := strings.IndexAny(req, "=<>!~[;@ "); i >= 0 {
		req = req[:i]
	}
	return strings.ToLower(req)
}

func scanGemfile(content string) []string {
	var deps []string
	for _, m := range gemPattern.FindAllStringSubmatch(content, -1) {
		deps = append(deps, m[1])
	}
	return deps
}
