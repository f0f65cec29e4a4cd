// Package scanner enumerates candidate source files under a project root and
// classifies each by language. Scanning is read-only and restartable; the
// same scanner can be invoked any number of times without side effects.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"apikb/internal/logging"
	"apikb/internal/manifest"
	"apikb/internal/paths"
)

// Directories that are never source, skipped during the walk. Build output,
// vendored dependencies, and editor bundles regularly contain malformed or
// minified JS that would crash or pollute extraction.
var skipDirs = map[string]bool{
	".git":             true,
	".hg":              true,
	".svn":             true,
	".apikb":           true,
	"node_modules":     true,
	"vendor":           true,
	"bower_components": true,
	"dist":             true,
	"build":            true,
	"out":              true,
	"target":           true,
	"bin":              true,
	"obj":              true,
	"__pycache__":      true,
	".venv":            true,
	"venv":             true,
	".idea":            true,
	".vscode":          true,
	".cache":           true,
	"coverage":         true,
	"docs":             true,
	"doc":              true,
}

// SourceFile is one scan result
type SourceFile struct {
	AbsPath string
	RelPath string // canonical project-relative path, forward slashes
	Lang    manifest.Language
}

// Config controls file discovery
type Config struct {
	Include          []string // glob patterns; empty means everything
	Exclude          []string // glob patterns and directory prefixes
	MaxFileSizeBytes int64    // files larger than this are skipped (0 = default)
}

const defaultMaxFileSize = 1_000_000

// Scanner walks a project root and yields (path, language) pairs
type Scanner struct {
	root   string
	config Config
	logger *logging.Logger
}

// New creates a scanner for the given project root
func New(root string, config Config, logger *logging.Logger) *Scanner {
	if config.MaxFileSizeBytes <= 0 {
		config.MaxFileSizeBytes = defaultMaxFileSize
	}
	return &Scanner{root: root, config: config, logger: logger}
}

// Scan walks the tree and returns all candidate source files
func (s *Scanner) Scan() ([]SourceFile, error) {
	var files []SourceFile
	err := s.Walk(func(f SourceFile) {
		files = append(files, f)
	})
	return files, err
}

// Walk invokes fn for each candidate source file. Inaccessible files are
// skipped; only a failure of the walk itself is returned.
func (s *Scanner) Walk(fn func(SourceFile)) error {
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // Skip inaccessible entries, continue walking
		}

		if info.IsDir() {
			base := filepath.Base(path)
			if path != s.root && (skipDirs[base] || strings.HasPrefix(base, ".")) {
				return filepath.SkipDir
			}
			rel, _ := paths.Canonicalize(path, s.root)
			if rel != "." && s.isExcluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := paths.Canonicalize(path, s.root)
		if relErr != nil {
			return nil //nolint:nilerr // Unresolvable path, skip
		}

		if s.isExcluded(rel) || !s.isIncluded(rel) {
			return nil
		}

		lang := ClassifyExtension(rel)
		if lang == manifest.LangUnknown {
			return nil
		}

		if info.Size() > s.config.MaxFileSizeBytes {
			if s.logger != nil {
				s.logger.Debug("Skipping oversized file", map[string]interface{}{
					"path": rel,
					"size": info.Size(),
				})
			}
			return nil
		}

		if (lang == manifest.LangJavaScript || lang == manifest.LangTypeScript) && looksGenerated(path, rel, info.Size()) {
			if s.logger != nil {
				s.logger.Debug("Skipping generated or minified asset", map[string]interface{}{
					"path": rel,
				})
			}
			return nil
		}

		fn(SourceFile{AbsPath: path, RelPath: rel, Lang: lang})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk project root: %w", err)
	}
	return nil
}

// Dirs returns every directory under the root that the walk would descend
// into. Used by watch mode to register filesystem watches.
func (s *Scanner) Dirs() ([]string, error) {
	var dirs []string
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if path != s.root && (skipDirs[base] || strings.HasPrefix(base, ".")) {
			return filepath.SkipDir
		}
		rel, _ := paths.Canonicalize(path, s.root)
		if rel != "." && s.isExcluded(rel) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk project root: %w", err)
	}
	return dirs, nil
}

// isExcluded checks config exclude patterns. Paths use forward slashes; a
// pattern is tried both as a glob and as a directory prefix, so "generated"
// excludes "generated/client.ts".
func (s *Scanner) isExcluded(rel string) bool {
	for _, pattern := range s.config.Exclude {
		p := filepath.ToSlash(pattern)
		if matched, _ := filepath.Match(p, rel); matched {
			return true
		}
		if matched, _ := filepath.Match(p, filepath.Base(rel)); matched {
			return true
		}
		dir := strings.TrimSuffix(p, "/") + "/"
		if strings.HasPrefix(rel, dir) || rel == strings.TrimSuffix(p, "/") {
			return true
		}
	}
	return false
}

// isIncluded checks config include patterns; an empty list includes everything
func (s *Scanner) isIncluded(rel string) bool {
	if len(s.config.Include) == 0 {
		return true
	}
	for _, pattern := range s.config.Include {
		p := filepath.ToSlash(pattern)
		if matched, _ := filepath.Match(p, rel); matched {
			return true
		}
		if matched, _ := filepath.Match(p, filepath.Base(rel)); matched {
			return true
		}
	}
	return false
}

// looksGenerated detects minified or machine-generated JS/TS by name and by a
// cheap single-read heuristic: very long average line length means bundler
// output, not hand-written source.
func looksGenerated(absPath, rel string, size int64) bool {
	base := filepath.Base(rel)
	if strings.Contains(base, ".min.") || strings.HasSuffix(base, ".bundle.js") {
		return true
	}
	if strings.HasSuffix(base, ".d.ts") {
		return true
	}
	if size < 4096 {
		return false // too small for the line heuristic to mean anything
	}

	f, err := os.Open(absPath)
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck // Best effort cleanup

	buf := make([]byte, 8192)
	n, _ := f.Read(buf)
	if n == 0 {
		return false
	}
	lines := 1
	for _, b := range buf[:n] {
		if b == '\n' {
			lines++
		}
	}
	return n/lines > 400
}
