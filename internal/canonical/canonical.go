// Package canonical renders a dependency index as deterministic text.
//
// The rendering is a comparison artifact: two independently built indexes
// over the same tree must produce byte-identical output regardless of record
// or dependency order.
package canonical

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dshills/hastemap/pkg/types"
)

// DefaultArtifactPath is where the CLI writes the comparison artifact
const DefaultArtifactPath = "haste_map_go.txt"

// Separator joins a path and its dependencies on one line
const Separator = "|"

// Line renders one record as path|dep1|dep2... with dependencies sorted.
// A record without dependencies renders as "path|".
func Line(rec types.SourceRecord) string {
	deps := slices.Clone(rec.Dependencies)
	slices.Sort(deps)
	return rec.Path + Separator + strings.Join(deps, Separator)
}

// Render returns one line per record, lines sorted, joined with "\n"
func Render(idx types.DependencyIndex) string {
	lines := make([]string, len(idx))
	for i := range idx {
		lines[i] = Line(idx[i])
	}
	slices.Sort(lines)
	return strings.Join(lines, "\n")
}

// WriteArtifact writes Render(idx) to path unless the file already exists.
// It reports whether the file was written.
func WriteArtifact(path string, idx types.DependencyIndex) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create artifact: %w", err)
	}

	if _, err := f.WriteString(Render(idx)); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to close artifact: %w", err)
	}
	return true, nil
}

// Diff is the line-level difference between two artifacts
type Diff struct {
	Equal   bool
	Added   int    // Lines only in the actual artifact
	Removed int    // Lines only in the expected artifact
	Text    string // Changed lines prefixed with "+" or "-"
}

// Compare diffs two rendered artifacts line by line
func Compare(expected, actual string) *Diff {
	if expected == actual {
		return &Diff{Equal: true}
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(withNewline(expected), withNewline(actual))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	d := &Diff{}
	var text strings.Builder
	for _, diff := range diffs {
		var prefix string
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(diff.Text, "\n"), "\n") {
			if prefix == "+" {
				d.Added++
			} else {
				d.Removed++
			}
			text.WriteString(prefix + line + "\n")
		}
	}
	d.Text = text.String()
	d.Equal = d.Added == 0 && d.Removed == 0
	return d
}

// CompareFiles diffs two artifact files
func CompareFiles(expectedPath, actualPath string) (*Diff, error) {
	expected, err := os.ReadFile(expectedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", expectedPath, err)
	}
	actual, err := os.ReadFile(actualPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", actualPath, err)
	}
	return Compare(string(expected), string(actual)), nil
}

// withNewline terminates the last line so it diffs like the others
func withNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
