// Package manifest defines the persisted knowledge base model for a scanned
// project (services, HTTP endpoints, DTO schemas, environment variables) and
// the generator, store, and read API built around it.
//
// Extraction is best-effort static analysis. Anything ambiguous is recorded
// with an explicit warning or partial marker rather than silently dropped.
package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// SchemaVersion is the manifest schema version. A manifest whose version does
// not match is treated as stale and fully regenerated.
const SchemaVersion = 3

// ExtractionStatus describes the outcome of extracting one source file
type ExtractionStatus string

const (
	StatusOK           ExtractionStatus = "ok"
	StatusParseWarning ExtractionStatus = "parse-warning"
	StatusParseError   ExtractionStatus = "parse-error"
)

// Language tags assigned by the scanner
type Language string

const (
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangUnknown    Language = "unknown"
)

// ProjectKnowledge is the root of the knowledge base for one project
type ProjectKnowledge struct {
	SchemaVersion int                     `json:"schemaVersion"`
	Project       string                  `json:"project"`
	Root          string                  `json:"root"`
	GeneratedAt   time.Time               `json:"generatedAt"`
	Services      []ServiceInfo           `json:"services"`
	Files         map[string]FileMetadata `json:"files"`
	Environment   []EnvironmentVariable   `json:"environment"`
}

// ServiceInfo groups the endpoints and DTO schemas detected under one service
// root. Owned exclusively by ProjectKnowledge and written only by the
// generator.
type ServiceInfo struct {
	Name      string         `json:"name"`
	Root      string         `json:"root"`
	Endpoints []EndpointInfo `json:"endpoints"`
	DTOs      []DtoSchema    `json:"dtos"`
}

// ParamInfo describes a single path or query parameter
type ParamInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required"`
}

// EndpointInfo describes one detected HTTP endpoint.
//
// RequestDTO/ResponseDTO are name references into the owning service's DTOs.
// A reference that cannot be resolved stays in place with a warning on the
// source file; it is never dropped.
type EndpointInfo struct {
	Method       string      `json:"method"`
	Path         string      `json:"path"`
	Partial      bool        `json:"partial,omitempty"` // path built from a runtime expression, best-effort
	PathParams   []ParamInfo `json:"pathParams,omitempty"`
	QueryParams  []ParamInfo `json:"queryParams,omitempty"`
	RequestDTO   string      `json:"requestDto,omitempty"`
	ResponseDTO  string      `json:"responseDto,omitempty"`
	AuthRequired bool        `json:"authRequired,omitempty"`
	Roles        []string    `json:"roles,omitempty"`
	SourceFile   string      `json:"sourceFile"`
	Line         int         `json:"line"`
}

// DtoField describes one field of a DTO schema
type DtoField struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Required    bool              `json:"required"`
	Constraints map[string]string `json:"constraints,omitempty"` // min, max, pattern, ...
	Default     string            `json:"default,omitempty"`
}

// DtoSchema is a named request/response record shape. It is recreated
// wholesale whenever its source file is re-extracted; fields are never merged
// across runs.
type DtoSchema struct {
	Name       string     `json:"name"`
	Fields     []DtoField `json:"fields"`
	SourceFile string     `json:"sourceFile"`
	Line       int        `json:"line"`
}

// EnvironmentVariable is a reference to an environment variable, deduplicated
// by name across the whole project
type EnvironmentVariable struct {
	Name       string `json:"name"`
	Default    string `json:"default,omitempty"`
	SourceFile string `json:"sourceFile"`
}

// FileMetadata drives incremental re-extraction decisions
type FileMetadata struct {
	Path        string           `json:"path"`
	Hash        string           `json:"hash"` // SHA-256 of file content
	ExtractedAt time.Time        `json:"extractedAt"`
	Language    Language         `json:"language"`
	Status      ExtractionStatus `json:"status"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// New returns an empty knowledge base for the given project
func New(project, root string) *ProjectKnowledge {
	return &ProjectKnowledge{
		SchemaVersion: SchemaVersion,
		Project:       project,
		Root:          root,
		GeneratedAt:   time.Now().UTC(),
		Services:      []ServiceInfo{},
		Files:         make(map[string]FileMetadata),
		Environment:   []EnvironmentVariable{},
	}
}

// Normalize sorts all slices into canonical order so that repeated generation
// over an unchanged tree produces byte-identical manifests modulo the
// generation timestamp.
func (pk *ProjectKnowledge) Normalize() {
	sort.Slice(pk.Services, func(i, j int) bool {
		return pk.Services[i].Name < pk.Services[j].Name
	})
	for s := range pk.Services {
		svc := &pk.Services[s]
		sort.Slice(svc.Endpoints, func(i, j int) bool {
			a, b := svc.Endpoints[i], svc.Endpoints[j]
			if a.Path != b.Path {
				return a.Path < b.Path
			}
			if a.Method != b.Method {
				return a.Method < b.Method
			}
			return a.SourceFile < b.SourceFile
		})
		sort.Slice(svc.DTOs, func(i, j int) bool {
			if svc.DTOs[i].Name != svc.DTOs[j].Name {
				return svc.DTOs[i].Name < svc.DTOs[j].Name
			}
			return svc.DTOs[i].SourceFile < svc.DTOs[j].SourceFile
		})
	}
	sort.Slice(pk.Environment, func(i, j int) bool {
		return pk.Environment[i].Name < pk.Environment[j].Name
	})
}

// Fingerprint returns a stable content hash of the manifest, excluding the
// generation and per-file extraction timestamps. Vector chunks are tagged
// with this value; a chunk whose fingerprint disagrees with the current
// manifest is stale.
func (pk *ProjectKnowledge) Fingerprint() string {
	clone := *pk
	clone.GeneratedAt = time.Time{}
	clone.Files = make(map[string]FileMetadata, len(pk.Files))
	for path, fm := range pk.Files {
		fm.ExtractedAt = time.Time{}
		clone.Files[path] = fm
	}
	data, err := json.Marshal(&clone)
	if err != nil {
		// Marshal of this model cannot fail in practice; keep a distinct
		// sentinel so a broken fingerprint never matches a real one.
		return "unfingerprintable"
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// Service returns the named service, or nil
func (pk *ProjectKnowledge) Service(name string) *ServiceInfo {
	for i := range pk.Services {
		if pk.Services[i].Name == name {
			return &pk.Services[i]
		}
	}
	return nil
}

// DTO returns the named schema within the service, or nil
func (s *ServiceInfo) DTO(name string) *DtoSchema {
	for i := range s.DTOs {
		if s.DTOs[i].Name == name {
			return &s.DTOs[i]
		}
	}
	return nil
}

// EntityID returns the stable identifier used to tie vector chunks back to
// their owning manifest entity.
func EndpointEntityID(service string, e *EndpointInfo) string {
	return fmt.Sprintf("endpoint:%s:%s %s", service, e.Method, e.Path)
}

// DtoEntityID returns the stable identifier for a DTO schema
func DtoEntityID(service, name string) string {
	return fmt.Sprintf("dto:%s:%s", service, name)
}

// ServiceEntityID returns the stable identifier for a service
func ServiceEntityID(name string) string {
	return fmt.Sprintf("service:%s", name)
}
