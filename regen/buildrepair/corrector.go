/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildrepair

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/agents/promptbuilder"
	"chainguard.dev/prrefine/agents/response"
	"chainguard.dev/prrefine/agents/schema"
	"github.com/chainguard-dev/clog"
)

// DefaultCorrectionTimeout bounds one correction request.
const DefaultCorrectionTimeout = 120 * time.Second

// CorrectionRequest carries what a Corrector needs to propose a fix.
type CorrectionRequest struct {
	Manifest   string
	Toolchain  Toolchain
	Current    string
	Diagnostic string
	// History summarizes the corrections already applied, oldest first.
	History []string
}

// Correction is a proposed replacement manifest.
type Correction struct {
	Content  string
	Analysis string
}

// Corrector proposes a full replacement for a manifest that failed to
// install.
type Corrector interface {
	Correct(ctx context.Context, req CorrectionRequest) (Correction, error)
}

const correctionSystem = "You are an expert dependency resolver. You repair dependency manifests so that the install command succeeds."

var correctionPrompt = promptbuilder.MustNewPrompt(`The command {{command}} failed for {{manifest}} with the following output:

---
{{diagnostic}}
---

Current {{manifest}}:
{{current}}

Expected manifest shape (JSON Schema):
{{shape}}

Corrections already applied:
{{history}}

Rules:
1. Read the error carefully and identify the exact package and version at fault.
2. When a version does not exist, LOWER it to a stable release. Never raise it.
3. Keep every package unless it truly cannot be resolved.
4. Change only what the error requires.
5. The result must be valid {{format}}.

Return your response in this EXACT format:

### Analysis:
- Brief explanation of what was wrong and what you fixed

### Fixed {{manifest}}:
<the complete corrected file in one fenced code block>
`)

// GeneratorCorrector asks a code generator for corrections.
type GeneratorCorrector struct {
	gen     codegen.Generator
	timeout time.Duration
}

// NewCorrector returns a Corrector backed by gen. A zero timeout selects
// DefaultCorrectionTimeout.
func NewCorrector(gen codegen.Generator, timeout time.Duration) (*GeneratorCorrector, error) {
	if gen == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if timeout <= 0 {
		timeout = DefaultCorrectionTimeout
	}
	return &GeneratorCorrector{gen: gen, timeout: timeout}, nil
}

func (c *GeneratorCorrector) Correct(ctx context.Context, req CorrectionRequest) (Correction, error) {
	prompt, err := buildCorrectionPrompt(req)
	if err != nil {
		return Correction{}, fmt.Errorf("building prompt: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.gen.Generate(reqCtx, codegen.Request{
		Operation: "correct",
		System:    correctionSystem,
		Prompt:    prompt,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Correction{}, fmt.Errorf("correction timed out after %s", c.timeout)
		}
		return Correction{}, fmt.Errorf("generating correction: %w", err)
	}

	corr := parseCorrection(resp.Text)
	if err := req.Toolchain.Validate(req.Current, corr.Content); err != nil {
		return Correction{}, err
	}
	return corr, nil
}

func buildCorrectionPrompt(req CorrectionRequest) (string, error) {
	history := "(none)"
	if len(req.History) > 0 {
		var b strings.Builder
		for i, h := range req.History {
			fmt.Fprintf(&b, "Attempt %d: %s\n", i+1, h)
		}
		history = strings.TrimRight(b.String(), "\n")
	}
	p, err := promptbuilder.BindAll(correctionPrompt,
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("command", req.Toolchain.Command())
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("manifest", req.Manifest)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("diagnostic", req.Diagnostic)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindFenced("current", string(req.Toolchain.Format), req.Current)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			if req.Toolchain.Shape == nil {
				return p.BindStringLiteral("shape", "(none; keep the existing structure)")
			}
			return p.BindJSON("shape", schema.Reflect(req.Toolchain.Shape))
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("history", history)
		},
		func(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
			return p.BindText("format", string(req.Toolchain.Format))
		},
	)
	if err != nil {
		return "", err
	}
	return p.Build()
}

// parseCorrection splits a reply into its analysis and the fenced manifest
// that follows the "### Fixed" heading.
func parseCorrection(text string) Correction {
	var c Correction
	body := text
	if i := strings.Index(text, "### Fixed"); i >= 0 {
		body = text[i:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = ""
		}
		if a := strings.Index(text[:i], "### Analysis:"); a >= 0 {
			c.Analysis = response.CleanChanges(text[a+len("### Analysis:") : i])
		}
	}
	c.Content = response.ExtractFenced(body)
	if c.Content != "" && !strings.HasSuffix(c.Content, "\n") {
		c.Content += "\n"
	}
	return c
}

// FallbackCorrector tries Primary, usually a search-augmented model, and
// falls back to Fallback when it fails or proposes an invalid manifest.
type FallbackCorrector struct {
	Primary  Corrector
	Fallback Corrector
}

func (f FallbackCorrector) Correct(ctx context.Context, req CorrectionRequest) (Correction, error) {
	c, err := f.Primary.Correct(ctx, req)
	if err == nil || f.Fallback == nil || ctx.Err() != nil {
		return c, err
	}
	clog.FromContext(ctx).With("manifest", req.Manifest).Warn("Primary corrector failed, using fallback", "error", err)
	c, ferr := f.Fallback.Correct(ctx, req)
	if ferr != nil {
		return Correction{}, errors.Join(err, ferr)
	}
	return c, nil
}
