package scanner

import (
	"path/filepath"
	"strings"

	"apikb/internal/manifest"
)

var extLanguages = map[string]manifest.Language{
	".py":   manifest.LangPython,
	".pyi":  manifest.LangPython,
	".java": manifest.LangJava,
	".js":   manifest.LangJavaScript,
	".mjs":  manifest.LangJavaScript,
	".cjs":  manifest.LangJavaScript,
	".jsx":  manifest.LangJavaScript,
	".ts":   manifest.LangTypeScript,
	".tsx":  manifest.LangTypeScript,
}

// ClassifyExtension maps a file path to a language tag by extension.
// Returns LangUnknown for anything the extractors do not handle.
func ClassifyExtension(path string) manifest.Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extLanguages[ext]; ok {
		return lang
	}
	return manifest.LangUnknown
}
