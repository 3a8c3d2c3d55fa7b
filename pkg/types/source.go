package types

import (
	"fmt"
	"slices"
	"strings"
)

// SourceRecord is the dependency list extracted from one source file
type SourceRecord struct {
	Path         string   // Absolute path of the source file
	Dependencies []string // Unique module specifiers as written in source
}

// Validate checks that the record has a path and no duplicate specifiers
func (r *SourceRecord) Validate() error {
	if strings.TrimSpace(r.Path) == "" {
		return ErrEmptyPath
	}

	seen := make(map[string]struct{}, len(r.Dependencies))
	for _, dep := range r.Dependencies {
		if _, ok := seen[dep]; ok {
			return fmt.Errorf("%w: %q in %s", ErrDuplicateDependency, dep, r.Path)
		}
		seen[dep] = struct{}{}
	}

	return nil
}

// DependencyIndex is the full haste map: one record per indexed source file
type DependencyIndex []SourceRecord

// Len returns the number of records
func (idx DependencyIndex) Len() int {
	return len(idx)
}

// Paths returns the record paths in index order
func (idx DependencyIndex) Paths() []string {
	paths := make([]string, len(idx))
	for i := range idx {
		paths[i] = idx[i].Path
	}
	return paths
}

// ToMap converts the index to a path -> dependencies mapping for hosts.
// The dependency slices are copies and keep their record order.
func (idx DependencyIndex) ToMap() map[string][]string {
	m := make(map[string][]string, len(idx))
	for _, rec := range idx {
		m[rec.Path] = slices.Clone(rec.Dependencies)
	}
	return m
}

// Lookup returns the record for path, if present
func (idx DependencyIndex) Lookup(path string) (SourceRecord, bool) {
	for _, rec := range idx {
		if rec.Path == path {
			return rec, true
		}
	}
	return SourceRecord{}, false
}

// Sorted returns a copy of the index ordered by path
func (idx DependencyIndex) Sorted() DependencyIndex {
	out := slices.Clone(idx)
	slices.SortFunc(out, func(a, b SourceRecord) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

// Validate checks every record and that paths are unique
func (idx DependencyIndex) Validate() error {
	seen := make(map[string]struct{}, len(idx))
	for i := range idx {
		if err := idx[i].Validate(); err != nil {
			return err
		}
		if _, ok := seen[idx[i].Path]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePath, idx[i].Path)
		}
		seen[idx[i].Path] = struct{}{}
	}
	return nil
}
