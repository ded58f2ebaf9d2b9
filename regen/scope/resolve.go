/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package scope

import (
	"path"
	"strings"

	"chainguard.dev/prrefine/regen/record"
)

var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// resolveLocal maps target's relative references onto paths present in
// files.
func resolveLocal(target record.FileRecord, files map[string]record.FileRecord) map[string]struct{} {
	out := make(map[string]struct{})
	if len(target.Local) == 0 {
		return out
	}
	has := func(p string) bool {
		_, ok := files[p]
		return ok
	}
	dir := path.Dir(target.Path)

	switch ext := strings.ToLower(path.Ext(target.Path)); ext {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		for _, ref := range target.Local {
			if p, ok := resolveJS(path.Join(dir, ref), has); ok {
				out[p] = struct{}{}
			}
		}

	case ".py":
		for _, ref := range target.Local {
			base := pythonModuleDir(dir, ref)
			for _, p := range []string{base + ".py", path.Join(base, "__init__.py")} {
				if has(p) {
					out[p] = struct{}{}
					break
				}
			}
		}

	case ".rb":
		for _, ref := range target.Local {
			p := path.Join(dir, ref)
			if !strings.HasSuffix(p, ".rb") {
				p += ".rb"
			}
			if has(p) {
				out[p] = struct{}{}
			}
		}

	case ".java", ".kt":
		// Class paths are matched by suffix since source roots vary
		// (src/main/java, app/src/main/kotlin, ...).
		for _, ref := range target.Local {
			for p := range files {
				trimmed := strings.TrimSuffix(strings.TrimSuffix(p, ".java"), ".kt")
				if trimmed != p && (trimmed == ref || strings.HasSuffix(trimmed, "/"+ref)) {
					out[p] = struct{}{}
				}
			}
		}
	}
	return out
}

func resolveJS(base string, has func(string) bool) (string, bool) {
	if has(base) {
		return base, true
	}
	for _, ext := range jsExtensions {
		if has(base + ext) {
			return base + ext, true
		}
	}
	for _, ext := range jsExtensions {
		if p := path.Join(base, "index"+ext); has(p) {
			return p, true
		}
	}
	return "", false
}

// pythonModuleDir turns a relative module reference such as "..models.user"
// into a slash path without extension. One leading dot is the importing
// package itself; each further dot climbs one directory.
func pythonModuleDir(dir, ref string) string {
	mod := strings.TrimLeft(ref, ".")
	for range len(ref) - len(mod) - 1 {
		dir = path.Dir(dir)
	}
	if mod == "" {
		return path.Join(dir, "__init__")
	}
	return path.Join(dir, strings.ReplaceAll(mod, ".", "/"))
}
