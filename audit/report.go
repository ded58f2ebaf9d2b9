/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// detailWidth caps the Detail column.
const detailWidth = 72

// Detail returns a one-line description of e.
func Detail(e Entry) string {
	var s string
	switch e.Kind {
	case KindFeedback:
		s = e.Changes
		if e.Failed {
			s = "FAILED: " + s
		}
	case KindBuild:
		s = fmt.Sprintf("attempt %d: %s (exit %d)", e.Attempt, e.Command, e.ExitCode)
	case KindError:
		s = e.ErrorKind + ": " + e.Message
	case KindRunStarted:
		s = fmt.Sprintf("%s -> %s @ %s", e.HeadBranch, e.BaseBranch, shortSHA(e.HeadSHA))
	default:
		s = e.Message
		if e.ErrorKind != "" {
			s = e.ErrorKind + ": " + s
		}
	}
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > detailWidth {
		s = string(r[:detailWidth-3]) + "..."
	}
	return s
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// WriteHistory renders entries as a Markdown table.
func WriteHistory(w io.Writer, entries []Entry) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Behavior: tw.Behavior{TrimSpace: tw.On},
		}),
		tablewriter.WithHeader([]string{"Time", "Run", "Kind", "Path", "Detail"}),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
	for _, e := range entries {
		run := e.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		if err := table.Append([]string{
			e.Time.UTC().Format("2006-01-02 15:04:05"),
			run,
			string(e.Kind),
			e.Path,
			Detail(e),
		}); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}
	return nil
}
