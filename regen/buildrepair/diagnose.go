/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildrepair

import (
	"strings"
	"unicode/utf8"
)

// DefaultDiagnosticLimit bounds the diagnostic sent to the corrector.
const DefaultDiagnosticLimit = 4000

// Diagnostic returns the last limit bytes of stderr, or of stdout when
// stderr is blank. The cut never splits a UTF-8 sequence.
func Diagnostic(res Result, limit int) string {
	out := res.Stderr
	if strings.TrimSpace(out) == "" {
		out = res.Stdout
	}
	out = strings.TrimSpace(out)
	if limit <= 0 || len(out) <= limit {
		return out
	}
	cut := len(out) - limit
	for cut < len(out) && !utf8.RuneStart(out[cut]) {
		cut++
	}
	return out[cut:]
}
