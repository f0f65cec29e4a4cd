// Package generator orchestrates scanning and extraction into a consistent
// ProjectKnowledge manifest, for both full and incremental runs.
package generator

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"apikb/internal/extract"
	"apikb/internal/logging"
	"apikb/internal/manifest"
	"apikb/internal/paths"
	"apikb/internal/scanner"
)

// ChangeSet is the minimal work-set supplied by SmartSync. Paths are
// canonical project-relative paths.
type ChangeSet struct {
	Added    []string
	Modified []string
	Removed  []string
}

// Total returns the number of paths in the set
func (c *ChangeSet) Total() int {
	return len(c.Added) + len(c.Modified) + len(c.Removed)
}

// Stats tracks what one generation run did
type Stats struct {
	Full           bool
	FilesScanned   int
	FilesExtracted int
	FilesCopied    int
	FilesRemoved   int
	ParseErrors    int
	Warnings       []string
	Duration       time.Duration
}

// Config configures a Generator
type Config struct {
	Project string // project name; defaults to the root directory base name
	Workers int    // extraction workers; 0 derives from GOMAXPROCS, capped at 8
	Scan    scanner.Config
}

// Generator builds manifests for one project root. Extraction runs in a
// bounded worker pool; the merge into ProjectKnowledge is single-writer.
type Generator struct {
	root    string
	project string
	workers int
	scan    *scanner.Scanner
	store   *manifest.Store
	logger  *logging.Logger
}

// New creates a generator for the given project root
func New(root string, cfg Config, logger *logging.Logger) *Generator {
	project := cfg.Project
	if project == "" {
		project = baseName(root)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > 8 {
		workers = 8
	}
	return &Generator{
		root:    root,
		project: project,
		workers: workers,
		scan:    scanner.New(root, cfg.Scan, logger),
		store:   manifest.NewStore(manifest.DefaultPath(root), logger),
		logger:  logger,
	}
}

// Store returns the manifest store used by this generator
func (g *Generator) Store() *manifest.Store {
	return g.store
}

// fileWork is one file queued for extraction
type fileWork struct {
	rel  string
	abs  string
	lang manifest.Language
}

// fileOutcome is the per-file extraction result collected by the merge
type fileOutcome struct {
	work   fileWork
	hash   string
	result *extract.Result
}

// Generate produces a new manifest and persists it atomically.
//
// With prior == nil or changes == nil a full scan runs and the result is
// built from extraction output alone; a prior manifest only preserves
// per-file extraction timestamps for unchanged content. Otherwise only the
// files in the change set are re-extracted: entities sourced from untouched
// files are copied forward unchanged, entities from changed files are fully
// replaced, and entities from removed files disappear.
func (g *Generator) Generate(ctx context.Context, prior *manifest.ProjectKnowledge, changes *ChangeSet) (*manifest.ProjectKnowledge, *Stats, error) {
	start := time.Now()
	stats := &Stats{Full: prior == nil || changes == nil}

	var work []fileWork
	touched := make(map[string]bool)
	removed := make(map[string]bool)

	if stats.Full {
		files, err := g.scan.Scan()
		if err != nil {
			return nil, nil, err
		}
		for _, f := range files {
			work = append(work, fileWork{rel: f.RelPath, abs: f.AbsPath, lang: f.Lang})
		}
		stats.FilesScanned = len(files)
	} else {
		for _, rel := range append(append([]string{}, changes.Added...), changes.Modified...) {
			lang := scanner.ClassifyExtension(rel)
			if lang == manifest.LangUnknown {
				continue
			}
			work = append(work, fileWork{rel: rel, abs: paths.JoinRoot(g.root, rel), lang: lang})
			touched[rel] = true
		}
		for _, rel := range changes.Removed {
			removed[rel] = true
		}
		stats.FilesScanned = len(work)
	}

	outcomes, err := g.extractAll(ctx, work)
	if err != nil {
		return nil, nil, err
	}
	stats.FilesExtracted = len(outcomes)

	pk := g.merge(prior, stats, outcomes, touched, removed)

	resolveDtoReferences(pk, stats)

	if err := g.store.Save(pk); err != nil {
		return nil, nil, err
	}

	stats.Duration = time.Since(start)
	g.logger.Info("Manifest generated", map[string]interface{}{
		"full":      stats.Full,
		"extracted": stats.FilesExtracted,
		"copied":    stats.FilesCopied,
		"removed":   stats.FilesRemoved,
		"errors":    stats.ParseErrors,
		"duration":  stats.Duration.String(),
	})

	return pk, stats, nil
}

// extractAll runs extraction over the work list with a bounded pool.
// Per-file failures never fail the run; they become parse-error outcomes.
func (g *Generator) extractAll(ctx context.Context, work []fileWork) ([]fileOutcome, error) {
	outcomes := make([]fileOutcome, 0, len(work))
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	for _, w := range work {
		w := w
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			src, err := os.ReadFile(w.abs)
			if err != nil {
				// File vanished between scan and read; treat as absent
				return nil //nolint:nilerr
			}

			hash := fmt.Sprintf("%x", sha256.Sum256(src))

			var result *extract.Result
			if ex := extract.ForLanguage(w.lang); ex != nil {
				result = extract.SafeExtract(ex, w.rel, src)
			} else {
				result = &extract.Result{Status: manifest.StatusParseError,
					Warnings: []string{"no extractor for language " + string(w.lang)}}
			}

			mu.Lock()
			outcomes = append(outcomes, fileOutcome{work: w, hash: hash, result: result})
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].work.rel < outcomes[j].work.rel })
	return outcomes, nil
}

// merge folds per-file outcomes plus the surviving parts of the prior
// manifest into a fresh ProjectKnowledge. Runs on a single goroutine.
func (g *Generator) merge(prior *manifest.ProjectKnowledge, stats *Stats, outcomes []fileOutcome, touched, removed map[string]bool) *manifest.ProjectKnowledge {
	pk := manifest.New(g.project, g.root)

	services := make(map[string]*manifest.ServiceInfo)
	envSeen := make(map[string]manifest.EnvironmentVariable)

	ensureService := func(rel string) *manifest.ServiceInfo {
		name, root := g.serviceForPath(rel)
		if svc, ok := services[name]; ok {
			return svc
		}
		svc := &manifest.ServiceInfo{Name: name, Root: root, Endpoints: []manifest.EndpointInfo{}, DTOs: []manifest.DtoSchema{}}
		services[name] = svc
		return svc
	}

	addEnv := func(ev manifest.EnvironmentVariable) {
		existing, ok := envSeen[ev.Name]
		if !ok || (existing.Default == "" && ev.Default != "") {
			envSeen[ev.Name] = ev
		}
	}

	// Carry forward everything sourced from untouched files. A full scan
	// re-extracts every file, so its output alone is authoritative; the prior
	// manifest then only supplies extraction timestamps for unchanged content.
	if prior != nil && !stats.Full {
		for path, fm := range prior.Files {
			if touched[path] || removed[path] {
				if removed[path] {
					stats.FilesRemoved++
				}
				continue
			}
			pk.Files[path] = fm
			stats.FilesCopied++
		}
		survives := func(src string) bool {
			_, kept := pk.Files[src]
			return kept
		}
		for i := range prior.Services {
			psvc := &prior.Services[i]
			for _, ep := range psvc.Endpoints {
				if survives(ep.SourceFile) {
					svc := ensureService(ep.SourceFile)
					svc.Endpoints = append(svc.Endpoints, ep)
				}
			}
			for _, dto := range psvc.DTOs {
				if survives(dto.SourceFile) {
					svc := ensureService(dto.SourceFile)
					svc.DTOs = append(svc.DTOs, dto)
				}
			}
		}
		for _, ev := range prior.Environment {
			if survives(ev.SourceFile) {
				addEnv(ev)
			}
		}
	}

	// Fold in freshly extracted files; these fully replace any prior entities
	for _, o := range outcomes {
		res := o.result

		fm := manifest.FileMetadata{
			Path:        o.work.rel,
			Hash:        o.hash,
			ExtractedAt: time.Now().UTC(),
			Language:    o.work.lang,
			Status:      res.Status,
			Warnings:    res.Warnings,
		}
		// Keep the prior extraction timestamp when content is unchanged so
		// repeated full runs stay byte-identical modulo GeneratedAt
		if prior != nil {
			if prev, ok := prior.Files[o.work.rel]; ok && prev.Hash == o.hash && prev.Status == res.Status {
				fm.ExtractedAt = prev.ExtractedAt
			}
		}
		pk.Files[o.work.rel] = fm

		if res.Status == manifest.StatusParseError {
			stats.ParseErrors++
		}
		for _, w := range res.Warnings {
			stats.Warnings = append(stats.Warnings, w)
		}

		if len(res.Endpoints) > 0 || len(res.DTOs) > 0 {
			svc := ensureService(o.work.rel)
			svc.Endpoints = append(svc.Endpoints, res.Endpoints...)
			svc.DTOs = append(svc.DTOs, res.DTOs...)
		}
		for _, ev := range res.EnvVars {
			addEnv(ev)
		}
	}

	for _, svc := range services {
		pk.Services = append(pk.Services, *svc)
	}
	for _, ev := range envSeen {
		pk.Environment = append(pk.Environment, ev)
	}
	pk.Normalize()

	return pk
}

// serviceForPath derives the owning service from a file's location: the top
// path segment for files in subdirectories, the project itself for files at
// the root.
func (g *Generator) serviceForPath(rel string) (name, root string) {
	if slash := strings.Index(rel, "/"); slash > 0 {
		seg := rel[:slash]
		return seg, seg
	}
	return g.project, "."
}

// resolveDtoReferences runs after the merge completes, since a DTO referenced
// by an endpoint may live in a file processed later in the same run. A
// reference that resolves in another service is left intact; one that
// resolves nowhere stays in place with an explicit warning.
func resolveDtoReferences(pk *manifest.ProjectKnowledge, stats *Stats) {
	known := make(map[string]bool)
	for i := range pk.Services {
		for j := range pk.Services[i].DTOs {
			known[pk.Services[i].DTOs[j].Name] = true
		}
	}

	warn := func(ep *manifest.EndpointInfo, kind, name string) {
		msg := fmt.Sprintf("%s:%d: %s DTO %q not found in any service", ep.SourceFile, ep.Line, kind, name)
		stats.Warnings = append(stats.Warnings, msg)
		if fm, ok := pk.Files[ep.SourceFile]; ok {
			fm.Warnings = append(fm.Warnings, msg)
			if fm.Status == manifest.StatusOK {
				fm.Status = manifest.StatusParseWarning
			}
			pk.Files[ep.SourceFile] = fm
		}
	}

	for i := range pk.Services {
		svc := &pk.Services[i]
		for j := range svc.Endpoints {
			ep := &svc.Endpoints[j]
			if ep.RequestDTO != "" && !known[ep.RequestDTO] {
				warn(ep, "request", ep.RequestDTO)
			}
			if ep.ResponseDTO != "" && !known[ep.ResponseDTO] {
				warn(ep, "response", ep.ResponseDTO)
			}
		}
	}
}

func baseName(path string) string {
	path = strings.TrimRight(strings.ReplaceAll(path, "\\", "/"), "/")
	if slash := strings.LastIndex(path, "/"); slash >= 0 {
		path = path[slash+1:]
	}
	if path == "" || path == "." {
		return "project"
	}
	return path
}
