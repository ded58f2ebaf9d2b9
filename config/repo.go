/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"fmt"
	"path"
	"time"

	"chainguard.dev/prrefine/regen/buildrepair"
	"github.com/BurntSushi/toml"
)

// RepoFile is the per-repository settings file, read from the head branch.
const RepoFile = ".prrefine.toml"

// Install overrides the install and build steps of one toolchain.
type Install struct {
	Command []string      `toml:"command"`
	Build   []string      `toml:"build"`
	Timeout time.Duration `toml:"timeout"`
}

// Repo holds per-repository settings. The zero value means defaults.
//
//	skip = ["generated/", "*.pb.go"]
//	standards_file = "CONTRIBUTING.md"
//
//	[install."package.json"]
//	command = ["pnpm", "install"]
//	build = ["pnpm", "run", "compile"]
//	timeout = "10m"
type Repo struct {
	Skip          []string           `toml:"skip"`
	StandardsFile string             `toml:"standards_file"`
	Install       map[string]Install `toml:"install"`
}

// ParseRepo decodes a .prrefine.toml document. Unknown keys are rejected
// so typos surface instead of being silently ignored.
func ParseRepo(data string) (Repo, error) {
	var r Repo
	md, err := toml.Decode(data, &r)
	if err != nil {
		return Repo{}, fmt.Errorf("decoding %s: %w", RepoFile, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Repo{}, fmt.Errorf("%s: unknown keys %v", RepoFile, undecoded)
	}
	for name, in := range r.Install {
		if _, ok := buildrepair.Lookup(name); !ok {
			return Repo{}, fmt.Errorf("%s: install override for unknown manifest %q", RepoFile, name)
		}
		if in.Timeout < 0 {
			return Repo{}, fmt.Errorf("%s: negative timeout for %q", RepoFile, name)
		}
	}
	return r, nil
}

// Override returns the install override for manifest, matched by base name.
func (r Repo) Override(manifest string) buildrepair.Override {
	in, ok := r.Install[path.Base(manifest)]
	if !ok {
		return buildrepair.Override{}
	}
	return buildrepair.Override{Command: in.Command, Build: in.Build, Timeout: in.Timeout}
}

// Standards returns the standards path, falling back to def.
func (r Repo) Standards(def string) string {
	if r.StandardsFile != "" {
		return r.StandardsFile
	}
	return def
}
