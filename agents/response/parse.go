/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package response

import (
	"regexp"
	"strings"
)

// Parsed is a well-formed regeneration reply.
type Parsed struct {
	// Changes is the cleaned summary of what the model changed.
	Changes string
	// Code is the full replacement file content.
	Code string
}

// ParseFailure reports a reply that does not follow the tagged format.
// Raw keeps the reply for the audit trail.
type ParseFailure struct {
	Raw    string
	Reason string
}

func (f *ParseFailure) Error() string {
	return "malformed reply: " + f.Reason
}

var (
	changesSection = regexp.MustCompile(`(?is)###\s*changes:?[ \t]*\n(.*?)(?:###\s*updated\s+code|\z)`)
	codeHeader     = regexp.MustCompile(`(?i)###\s*updated\s+code:?[ \t]*\n`)
	openFence      = regexp.MustCompile("^\\s*```[\\w+.#-]*[ \\t]*\\n")
	thinkBlock     = regexp.MustCompile(`(?is)<think>(.*?)</think>`)
	fenceLine      = regexp.MustCompile("(?m)^```[\\w+.#-]*[ \\t]*$")
)

// Parse reads a reply of the form
//
//	### Changes:
//	- summary
//
//	### Updated Code:
//	```lang
//	...
//	```
//
// Header matching ignores case. When the sections are absent from the reply
// proper but present inside a <think> block, the block is used. Any other
// shape yields a *ParseFailure.
func Parse(text string) (Parsed, error) {
	p, reason := parseSections(text)
	if reason == "" {
		return p, nil
	}
	for _, m := range thinkBlock.FindAllStringSubmatch(text, -1) {
		if inner, innerReason := parseSections(m[1]); innerReason == "" {
			return inner, nil
		}
	}
	return Parsed{}, &ParseFailure{Raw: text, Reason: reason}
}

func parseSections(text string) (Parsed, string) {
	cm := changesSection.FindStringSubmatch(text)
	if cm == nil {
		return Parsed{}, "missing Changes section"
	}
	loc := codeHeader.FindStringIndex(text)
	if loc == nil {
		return Parsed{}, "missing Updated Code section"
	}
	code, ok := fencedBody(text[loc[1]:])
	if !ok {
		return Parsed{}, "Updated Code is not followed by a closed fenced block"
	}
	code = CleanCode(code)
	if strings.TrimSpace(code) == "" {
		return Parsed{}, "Updated Code block is empty"
	}
	return Parsed{Changes: CleanChanges(cm[1]), Code: code}, ""
}

// fencedBody returns the content of the fenced block that opens s, without
// the language tag. The closing fence must sit on its own line.
func fencedBody(s string) (string, bool) {
	loc := openFence.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	rest := s[loc[1]:]
	for off := 0; off < len(rest); {
		i := strings.Index(rest[off:], "```")
		if i < 0 {
			return "", false
		}
		i += off
		atLineStart := i == 0 || rest[i-1] == '\n'
		after := rest[i+3:]
		eol := strings.IndexByte(after, '\n')
		if eol < 0 {
			eol = len(after)
		}
		if atLineStart && strings.TrimSpace(after[:eol]) == "" {
			return strings.TrimSuffix(rest[:i], "\n"), true
		}
		off = i + 3
	}
	return "", false
}

var (
	codeBlock    = regexp.MustCompile("(?s)```[\\w+.#-]*\\n.*?```")
	parenLink    = regexp.MustCompile(`\s*\(\[[^\]]+\]\([^)]+\)\)`)
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\((?:https?://|www\.)[^)]+\)`)
	parenURL     = regexp.MustCompile(`\s*\(https?://[^)]+\)`)
	bareURL      = regexp.MustCompile(`https?://[^\s)]+`)
	sourceCite   = regexp.MustCompile(`【[^】]*】`)
	utmParam     = regexp.MustCompile(`[?&]utm_source=[^)\s]*`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
	blankLines   = regexp.MustCompile(`\n\s*\n`)
	spaceBeforeP = regexp.MustCompile(`[ \t]+([.,;:])`)
)

// CleanChanges strips code blocks, links, URLs and search citations from a
// changes summary.
func CleanChanges(s string) string {
	s = codeBlock.ReplaceAllString(s, "")
	s = parenLink.ReplaceAllString(s, "")
	s = markdownLink.ReplaceAllString(s, "$1")
	s = parenURL.ReplaceAllString(s, "")
	s = bareURL.ReplaceAllString(s, "")
	s = sourceCite.ReplaceAllString(s, "")
	s = utmParam.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	s = spaceBeforeP.ReplaceAllString(s, "$1")
	s = blankLines.ReplaceAllString(s, "\n")

	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

var searchReplace = regexp.MustCompile(`(?s)<<<<<<< SEARCH\n.*?\n?=======\n(.*?)\n?>>>>>>> REPLACE[^\n]*`)

// CleanCode removes stray fences and SEARCH/REPLACE markers, keeping the
// replacement side of each conflict.
func CleanCode(s string) string {
	s = searchReplace.ReplaceAllString(s, "$1")
	s = strings.TrimRight(strings.TrimLeft(s, "\r\n"), " \t\r\n")
	if loc := openFence.FindStringIndex(s); loc != nil {
		s = strings.TrimSuffix(s[loc[1]:], "```")
	}
	return strings.Trim(s, "\n") + "\n"
}

// ExtractFenced returns the body of the first fenced block in text, or the
// trimmed text when it has none. It is meant for replies that should be a
// single document, such as a corrected manifest.
func ExtractFenced(text string) string {
	loc := fenceLine.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text)
	}
	rest := text[loc[0]:]
	if body, ok := fencedBody(rest); ok {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(openFence.ReplaceAllString(rest, ""))
}
