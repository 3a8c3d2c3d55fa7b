package indexer

import (
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExtensions are the source extensions indexed when none are configured
var DefaultExtensions = []string{"js"}

// GlobPattern returns the discovery glob for extensions: files at any depth
// inside an immediate subdirectory, never directly at the root.
func GlobPattern(extensions []string) string {
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" && !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	if len(exts) == 1 {
		return "*/**/*." + exts[0]
	}
	return "*/**/*.{" + strings.Join(exts, ",") + "}"
}

// discoverFiles returns the slash-separated paths in fsys matching the
// discovery glob, minus those matching an ignore pattern. Any error while
// enumerating the tree fails the whole discovery.
func discoverFiles(fsys fs.FS, extensions, ignore []string) ([]string, error) {
	for _, pattern := range ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	matches, err := doublestar.Glob(fsys, GlobPattern(extensions),
		doublestar.WithFailOnIOErrors(), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate files: %w", err)
	}

	files := make([]string, 0, len(matches))
	for _, path := range matches {
		if ignored(path, ignore) {
			continue
		}
		files = append(files, path)
	}

	slices.Sort(files)
	return files, nil
}

func ignored(path string, patterns []string) bool {
	for _, pattern := range patterns {
		// Patterns were validated, so Match cannot fail
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}
