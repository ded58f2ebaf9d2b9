/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"path"
	"strings"

	"chainguard.dev/prrefine/agents/promptbuilder"
	"chainguard.dev/prrefine/regen/record"
)

const systemInstructions = `ROLE: Expert code reviewer

TASK: Improve and refactor exactly one file of a pull request so that it
meets the repository's coding standards, keeping its language and purpose.

CONSTRAINTS:
- Return the complete file, never a diff or an excerpt
- Do not suggest creating other files
- Do not add placeholder imports or components
- If the file already meets the standards, say "No changes needed." and
  return it unchanged`

var regeneratePrompt = promptbuilder.MustNewPrompt(`Refactor ONLY the file {{path}} so that it meets the following coding standards:

{{standards}}

---
Repository context (other files for reference):
{{context}}
---
Current code ({{path}}, {{lang}} file):
{{code}}

---
{{guidance}}
---
Reply in this EXACT format:

### Changes:
- A bullet-point summary of what was changed.

### Updated Code:
` + "```" + `{{lang}}
<the complete updated file>
` + "```" + `

Rules:
1. The reply starts with "### Changes:" and ends with the code block.
2. Provide exactly one code block, under "### Updated Code".
3. Return the same kind of file ({{lang}}); do not convert it.
4. If no improvements are needed, write "No changes needed." under
   "### Changes" and return the original code unchanged.`)

const sourceGuidance = `DEPENDENCIES:
- Only use packages that the repository already declares or that are built in.
- Do not introduce imports for packages that are not available; mention any
  dependency you believe is missing under "### Changes" instead.
- Remove unused imports.
- Keep relative import paths pointing at files that exist.`

const manifestGuidance = `MANIFEST ANALYSIS:
The context above is the dependency summary of this pull request: every
dependency identifier, the manifests declaring it and the sources using it.
1. Keep every dependency that a source file uses.
2. Add dependencies that are used but not declared.
3. Remove dependencies that nothing uses.
4. Keep development tooling (types, test frameworks, build tools) in the
   development section.
5. Be conservative: prefer versions known to exist over the newest ones.`

// language returns the fence tag for p: the extension, or the base name
// for extensionless manifests such as Gemfile.
func language(p string) string {
	if ext := strings.TrimPrefix(path.Ext(p), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return strings.ToLower(path.Base(p))
}

func buildPrompt(rec record.FileRecord, standards, context string) (string, error) {
	guidance := sourceGuidance
	if rec.Kind == record.KindManifest {
		guidance = manifestGuidance
	}
	if context == "" {
		context = "(no related files)"
	}
	lang := language(rec.Path)

	p, err := promptbuilder.BindAll(regeneratePrompt,
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) { return p.BindText("path", rec.Path) },
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) { return p.BindText("lang", lang) },
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("standards", standards)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) { return p.BindText("context", context) },
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindFenced("code", lang, rec.Original)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) { return p.BindText("guidance", guidance) },
	)
	if err != nil {
		return "", err
	}
	return p.Build()
}
