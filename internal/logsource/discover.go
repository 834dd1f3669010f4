package logsource

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPattern selects every .log file below a directory.
const DefaultPattern = "**/*.log"

// Discover walks root and returns the regular files whose slash-separated
// path relative to root matches pattern, sorted. '*' stops at '/', '**'
// crosses it, and a leading "**/" also matches files directly in root.
func Discover(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	matchers, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, g := range matchers {
			if g.Match(rel) {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("logsource: walk %s: %w", root, err)
	}
	slices.Sort(paths)
	return paths, nil
}

func compilePattern(pattern string) ([]glob.Glob, error) {
	patterns := []string{pattern}
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		patterns = append(patterns, rest)
	}
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("logsource: invalid pattern %q: %w", pattern, err)
		}
		matchers = append(matchers, g)
	}
	return matchers, nil
}
