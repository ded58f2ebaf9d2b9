/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package record

// FileSet is an insertion-ordered collection of RegeneratedFile keyed by
// path. A path appears at most once; Put on an existing path replaces the
// entry in place.
type FileSet struct {
	order []string
	files map[string]RegeneratedFile
}

// NewFileSet returns an empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{files: make(map[string]RegeneratedFile)}
}

// Put inserts or replaces the entry for f.Path.
func (s *FileSet) Put(f RegeneratedFile) {
	if _, ok := s.files[f.Path]; !ok {
		s.order = append(s.order, f.Path)
	}
	s.files[f.Path] = f
}

// Get returns the entry for p.
func (s *FileSet) Get(p string) (RegeneratedFile, bool) {
	if s == nil {
		return RegeneratedFile{}, false
	}
	f, ok := s.files[p]
	return f, ok
}

// Len returns the number of entries.
func (s *FileSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Files returns a copy of the entries in insertion order.
func (s *FileSet) Files() []RegeneratedFile {
	if s == nil {
		return nil
	}
	out := make([]RegeneratedFile, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, s.files[p])
	}
	return out
}

// Paths returns the entry paths in insertion order.
func (s *FileSet) Paths() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}
