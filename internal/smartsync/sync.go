// Package smartsync keeps a project's manifest current with minimal work: it
// diffs content hashes against the previous manifest to find the smallest set
// of files that must be re-extracted, and can run as a long-lived debounced
// file watcher.
package smartsync

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"

	kberrors "apikb/internal/errors"
	"apikb/internal/generator"
	"apikb/internal/logging"
	"apikb/internal/manifest"
	"apikb/internal/scanner"
)

// State of a syncer. One-shot invocations move Idle -> Scanning -> Idle;
// watch mode moves Watching -> Debouncing -> Scanning -> Watching.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateWatching   State = "watching"
	StateDebouncing State = "debouncing"
)

// Syncer computes minimal work-sets and drives the generator. All state is
// owned by the Syncer instance; multiple projects can sync concurrently
// without interference.
type Syncer struct {
	root   string
	scan   *scanner.Scanner
	gen    *generator.Generator
	logger *logging.Logger

	mu    sync.Mutex
	state State
}

// New creates a syncer sharing the generator's scan configuration
func New(root string, scanCfg scanner.Config, gen *generator.Generator, logger *logging.Logger) *Syncer {
	return &Syncer{
		root:   root,
		scan:   scanner.New(root, scanCfg, logger),
		gen:    gen,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current state
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Syncer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Plan recomputes the content hash of every candidate file and diffs against
// the hash map in the prior manifest. Returns nil when the prior manifest
// carries no usable hash map, which means a full scan is required.
func (s *Syncer) Plan(prior *manifest.ProjectKnowledge) (*generator.ChangeSet, error) {
	if prior == nil || len(prior.Files) == 0 {
		return nil, nil
	}

	cs := &generator.ChangeSet{}
	seen := make(map[string]bool, len(prior.Files))

	err := s.scan.Walk(func(f scanner.SourceFile) {
		hash, hashErr := hashFile(f.AbsPath)
		if hashErr != nil {
			return // unreadable now; treated as absent below
		}
		seen[f.RelPath] = true
		prev, exists := prior.Files[f.RelPath]
		switch {
		case !exists:
			cs.Added = append(cs.Added, f.RelPath)
		case prev.Hash != hash:
			cs.Modified = append(cs.Modified, f.RelPath)
		}
	})
	if err != nil {
		return nil, kberrors.New(kberrors.ScanFailed, "change detection walk failed", err)
	}

	for path := range prior.Files {
		if !seen[path] {
			cs.Removed = append(cs.Removed, path)
		}
	}

	return cs, nil
}

// Sync brings the manifest up to date. A missing, corrupt, or stale prior
// manifest degrades to a full scan rather than failing. When nothing changed
// the prior manifest is returned untouched.
func (s *Syncer) Sync(ctx context.Context) (*manifest.ProjectKnowledge, *generator.Stats, error) {
	s.setState(StateScanning)
	defer s.setState(StateIdle)

	prior := s.loadPrior()

	var changes *generator.ChangeSet
	if prior != nil {
		var err error
		changes, err = s.Plan(prior)
		if err != nil {
			return nil, nil, err
		}
		if changes != nil && changes.Total() == 0 {
			s.logger.Debug("No changes detected, manifest is current", nil)
			return prior, &generator.Stats{}, nil
		}
	}

	return s.gen.Generate(ctx, prior, changes)
}

// loadPrior loads the previous manifest, mapping every regenerate-signal
// (missing, corrupt, stale schema) to nil so the caller falls back to a full
// scan. Only unexpected I/O failures are logged at warn level.
func (s *Syncer) loadPrior() *manifest.ProjectKnowledge {
	prior, err := s.gen.Store().Load()
	if err == nil {
		return prior
	}

	switch kberrors.CodeOf(err) {
	case kberrors.ManifestMissing:
		s.logger.Debug("No prior manifest, running full scan", nil)
	case kberrors.ManifestCorrupt, kberrors.ManifestStale:
		s.logger.Warn("Prior manifest unusable, degrading to full scan", map[string]interface{}{
			"reason": err.Error(),
		})
	default:
		s.logger.Warn("Failed to load prior manifest, degrading to full scan", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return nil
}

// hashFile computes SHA256 of a file
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // Best effort cleanup

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
