package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	kberrors "apikb/internal/errors"
	"apikb/internal/logging"
)

// DefaultPath returns the canonical manifest path for a project root
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".apikb", "manifest.json")
}

// Store persists ProjectKnowledge to a single JSON document.
// Writes are atomic (temp file + rename), so a concurrent reader always sees
// either the old or the new complete manifest, never a partial one.
type Store struct {
	path   string
	logger *logging.Logger
}

// NewStore creates a store for the given manifest path
func NewStore(path string, logger *logging.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the canonical manifest path
func (s *Store) Path() string {
	return s.path
}

// Load reads and validates the persisted manifest.
//
// Error codes:
//   - MANIFEST_MISSING: no manifest exists yet
//   - MANIFEST_CORRUPT: file exists but cannot be parsed or fails validation
//   - MANIFEST_STALE:   schema version mismatch
//
// All three are regenerate-signals for SmartSync, not crashes.
func (s *Store) Load() (*ProjectKnowledge, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, kberrors.New(kberrors.ManifestMissing, "no manifest found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var pk ProjectKnowledge
	if err := json.Unmarshal(data, &pk); err != nil {
		return nil, kberrors.New(kberrors.ManifestCorrupt, "manifest is not valid JSON", err)
	}

	if pk.SchemaVersion != SchemaVersion {
		return nil, kberrors.New(kberrors.ManifestStale, "manifest schema version mismatch", nil).
			WithDetails(map[string]int{"found": pk.SchemaVersion, "expected": SchemaVersion})
	}

	if err := validate(&pk); err != nil {
		return nil, kberrors.New(kberrors.ManifestCorrupt, "manifest failed structural validation", err)
	}

	if pk.Files == nil {
		pk.Files = make(map[string]FileMetadata)
	}

	return &pk, nil
}

// Save atomically persists the manifest. The serialized form is written to a
// temporary file in the same directory and renamed over the canonical path.
// The temp file is removed on every failure path.
func (s *Store) Save(pk *ProjectKnowledge) error {
	pk.Normalize()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(pk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "manifest-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp manifest: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("Manifest saved", map[string]interface{}{
			"path":     s.path,
			"services": len(pk.Services),
			"files":    len(pk.Files),
		})
	}

	return nil
}

// validate performs structural checks beyond JSON well-formedness
func validate(pk *ProjectKnowledge) error {
	if pk.Project == "" {
		return fmt.Errorf("missing project name")
	}
	seen := make(map[string]bool, len(pk.Services))
	for i := range pk.Services {
		svc := &pk.Services[i]
		if svc.Name == "" {
			return fmt.Errorf("service %d has no name", i)
		}
		if seen[svc.Name] {
			return fmt.Errorf("duplicate service %q", svc.Name)
		}
		seen[svc.Name] = true
		for j := range svc.Endpoints {
			e := &svc.Endpoints[j]
			if e.Method == "" || e.Path == "" {
				return fmt.Errorf("service %q endpoint %d missing method or path", svc.Name, j)
			}
		}
		for j := range svc.DTOs {
			if svc.DTOs[j].Name == "" {
				return fmt.Errorf("service %q schema %d has no name", svc.Name, j)
			}
		}
	}
	for path, fm := range pk.Files {
		if fm.Hash == "" {
			return fmt.Errorf("file %q has no content hash", path)
		}
	}
	return nil
}
