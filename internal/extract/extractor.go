// Package extract converts single source files into endpoint, DTO, and
// environment-variable candidates.
//
// Extraction is textual and heuristic: each language strategy scans for a
// small set of anchor patterns (route registrations, type declarations)
// rather than building a full parse tree. A route whose path is assembled at
// runtime is still recorded, flagged as partial; a construct the patterns
// miss is simply absent. Gaps surface through per-file warnings.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"apikb/internal/manifest"
)

// Result holds everything extracted from one source file
type Result struct {
	Endpoints []manifest.EndpointInfo
	DTOs      []manifest.DtoSchema
	EnvVars   []manifest.EnvironmentVariable
	Status    manifest.ExtractionStatus
	Warnings  []string
}

// Extractor converts one source file of a known language into candidates.
// Implementations must be safe for concurrent use; they hold no per-file
// state between calls.
type Extractor interface {
	Language() manifest.Language
	Extract(relPath string, src []byte) (*Result, error)
}

// ForLanguage returns the extractor strategy for a language tag, or nil when
// the language is not supported. Adding a language means adding one new
// strategy here; orchestration code never changes.
func ForLanguage(lang manifest.Language) Extractor {
	switch lang {
	case manifest.LangPython:
		return &PythonExtractor{}
	case manifest.LangJava:
		return &JavaExtractor{}
	case manifest.LangJavaScript, manifest.LangTypeScript:
		return &JavaScriptExtractor{lang: lang}
	default:
		return nil
	}
}

// SafeExtract runs an extractor with full failure isolation: a panic or error
// inside a strategy is converted into a parse-error result for that file and
// never propagates. One bad file must never abort a whole-project scan.
func SafeExtract(ex Extractor, relPath string, src []byte) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			result = &Result{
				Status:   manifest.StatusParseError,
				Warnings: []string{fmt.Sprintf("extractor panic: %v", r)},
			}
		}
	}()

	res, err := ex.Extract(relPath, src)
	if err != nil {
		return &Result{
			Status:   manifest.StatusParseError,
			Warnings: []string{fmt.Sprintf("extraction failed: %v", err)},
		}
	}
	if res == nil {
		res = &Result{}
	}
	if res.Status == "" {
		if len(res.Warnings) > 0 {
			res.Status = manifest.StatusParseWarning
		} else {
			res.Status = manifest.StatusOK
		}
	}
	return res
}

// PartialPath is the placeholder recorded when a route path cannot be
// statically resolved (built from a runtime expression). The endpoint is kept
// with Partial=true instead of being dropped.
const PartialPath = "~dynamic"

// splitLines splits source into lines without allocating per-line copies of
// the underlying bytes more than once.
func splitLines(src []byte) []string {
	return strings.Split(string(src), "\n")
}

// httpMethods recognized in route anchors, upper-cased in results
var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// pathTemplateRe matches {param} segments in normalized path templates
var pathTemplateRe = regexp.MustCompile(`\{(\w+)\}`)

// isTypeName reports whether s looks like a user-defined type reference
// (capitalized identifier), the signal used to treat a parameter or return
// annotation as a DTO name reference.
func isTypeName(s string) bool {
	if s == "" || !identRe.MatchString(s) {
		return false
	}
	first := s[0]
	return first >= 'A' && first <= 'Z'
}

// joinRoutePaths joins a controller-level prefix with a method-level segment
// into one normalized path template.
func joinRoutePaths(base, sub string) string {
	base = strings.TrimSuffix(strings.TrimSpace(base), "/")
	sub = strings.TrimSpace(sub)
	if sub != "" && !strings.HasPrefix(sub, "/") {
		sub = "/" + sub
	}
	joined := base + sub
	if joined == "" {
		return "/"
	}
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined
}

// normalizeConstraints drops empty values so constraint maps marshal cleanly
func normalizeConstraints(c map[string]string) map[string]string {
	for k, v := range c {
		if v == "" {
			delete(c, k)
		}
	}
	if len(c) == 0 {
		return nil
	}
	return c
}
