package vector

import (
	"context"

	"apikb/internal/logging"
	"apikb/internal/manifest"
)

// Indexer embeds manifest chunks and writes them as a new index generation
type Indexer struct {
	engine    Engine
	store     *Store
	maxTokens int
	batchSize int
	logger    *logging.Logger
}

// NewIndexer creates an indexer over the given engine and store
func NewIndexer(engine Engine, store *Store, maxTokens int, logger *logging.Logger) *Indexer {
	return &Indexer{
		engine:    engine,
		store:     store,
		maxTokens: maxTokens,
		batchSize: 32,
		logger:    logger,
	}
}

// IndexStats reports what one index build did
type IndexStats struct {
	Chunks      int
	Skipped     bool // index was already current for this manifest
	Fingerprint string
}

// Index builds the vector index for a manifest. When the active generation
// already matches the manifest fingerprint the build is skipped entirely,
// which makes watch-triggered rebuilds cheap for no-op syncs.
func (ix *Indexer) Index(ctx context.Context, pk *manifest.ProjectKnowledge) (*IndexStats, error) {
	fingerprint := pk.Fingerprint()

	current, err := ix.store.CurrentFingerprint()
	if err != nil {
		return nil, err
	}
	if current == fingerprint {
		ix.logger.Debug("Vector index is current, skipping rebuild", map[string]interface{}{
			"fingerprint": fingerprint,
		})
		return &IndexStats{Skipped: true, Fingerprint: fingerprint}, nil
	}

	chunks := ChunkManifest(pk, ix.maxTokens)

	embeddings := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := ix.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, vecs...)
	}

	if err := ix.store.WriteGeneration(fingerprint, ix.engine.Name(), chunks, embeddings); err != nil {
		return nil, err
	}

	ix.logger.Info("Vector index built", map[string]interface{}{
		"chunks":      len(chunks),
		"engine":      ix.engine.Name(),
		"fingerprint": fingerprint,
	})

	return &IndexStats{Chunks: len(chunks), Fingerprint: fingerprint}, nil
}
