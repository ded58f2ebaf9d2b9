/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package scope

import (
	"cmp"
	"fmt"
	"slices"

	"chainguard.dev/prrefine/regen/record"
)

// Ordering arranges candidates before packing. Candidates that sort last
// are the first to be dropped when the budget runs out. Implementations
// must be deterministic.
type Ordering func(target record.FileRecord, candidates []record.FileRecord) []record.FileRecord

// PathOrder packs candidates in lexical path order.
func PathOrder(_ record.FileRecord, candidates []record.FileRecord) []record.FileRecord {
	out := slices.Clone(candidates)
	slices.SortFunc(out, func(a, b record.FileRecord) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return out
}

// OverlapOrder packs candidates sharing more dependencies with the target
// first, breaking ties by path.
func OverlapOrder(target record.FileRecord, candidates []record.FileRecord) []record.FileRecord {
	overlap := func(f record.FileRecord) int {
		n := 0
		for _, d := range f.Deps {
			if _, found := slices.BinarySearch(target.Deps, d); found {
				n++
			}
		}
		return n
	}
	out := slices.Clone(candidates)
	slices.SortFunc(out, func(a, b record.FileRecord) int {
		if c := cmp.Compare(overlap(b), overlap(a)); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return out
}

// OrderingByName maps a configuration value to an Ordering.
func OrderingByName(name string) (Ordering, error) {
	switch name {
	case "", "path":
		return PathOrder, nil
	case "overlap":
		return OverlapOrder, nil
	default:
		return nil, fmt.Errorf("unknown context ordering %q", name)
	}
}
