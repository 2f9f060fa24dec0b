package vector

import (
	"path/filepath"
	"strings"
)

// DocType is the coarse content classification of an indexed unit, used
// for filtering and for short-path display.
type DocType string

const (
	DocTypeCode   DocType = "code"
	DocTypeTest   DocType = "test"
	DocTypeDocs   DocType = "docs"
	DocTypeConfig DocType = "config"
	DocTypeI18n   DocType = "i18n"
)

var i18nSegments = map[string]bool{
	"locales":      true,
	"locale":       true,
	"i18n":         true,
	"l10n":         true,
	"translations": true,
	"lang":         true,
}

var docsExtensions = map[string]bool{
	".md":    true,
	".mdx":   true,
	".rst":   true,
	".adoc":  true,
	".txt":   true,
}

var configExtensions = map[string]bool{
	".json":       true,
	".yaml":       true,
	".yml":        true,
	".toml":       true,
	".ini":        true,
	".env":        true,
	".properties": true,
}

var configNames = map[string]bool{
	"dockerfile":     true,
	"makefile":       true,
	".gitignore":     true,
	".dockerignore":  true,
	".editorconfig":  true,
	"go.mod":         true,
	"go.sum":         true,
	"package.json":   true,
	"tsconfig.json":  true,
	"pyproject.toml": true,
}

// ClassifyPath derives a DocType from path heuristics, evaluated in a
// fixed priority order: localization paths win over generic config,
// test markers over docs, docs extensions over generic config, and
// anything unmatched defaults to code.
func ClassifyPath(path string) DocType {
	normalized := strings.ToLower(filepath.ToSlash(path))
	base := strings.ToLower(filepath.Base(normalized))
	ext := filepath.Ext(base)

	for _, seg := range strings.Split(normalized, "/") {
		if i18nSegments[seg] {
			return DocTypeI18n
		}
	}

	if isTestPath(normalized, base) {
		return DocTypeTest
	}

	if docsExtensions[ext] || hasSegment(normalized, "docs") || hasSegment(normalized, "doc") {
		return DocTypeDocs
	}

	if configExtensions[ext] || configNames[base] || hasSegment(normalized, "config") {
		return DocTypeConfig
	}

	return DocTypeCode
}

func isTestPath(normalized, base string) bool {
	if strings.HasSuffix(base, "_test.go") {
		return true
	}
	for _, marker := range []string{".test.", ".spec.", "_test.py", "_spec.rb"} {
		if strings.Contains(base, marker) {
			return true
		}
	}
	for _, seg := range []string{"test", "tests", "__tests__", "spec", "testdata"} {
		if hasSegment(normalized, seg) {
			return true
		}
	}
	return false
}

func hasSegment(normalized, want string) bool {
	for _, seg := range strings.Split(normalized, "/") {
		if seg == want {
			return true
		}
	}
	return false
}

// ShortPath trims a path for display, keeping at most the trailing
// three segments.
func ShortPath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= 3 {
		return strings.Join(parts, "/")
	}
	return ".../" + strings.Join(parts[len(parts)-3:], "/")
}
