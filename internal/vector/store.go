package vector

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"apikb/internal/config"
	kberrors "apikb/internal/errors"
	"apikb/internal/logging"
)

// Store persists embedded chunks in SQLite under .apikb/vectors.db. Chunks
// are keyed by the fingerprint of the manifest they were built from, so an
// index build writes a complete new generation and flips the active
// fingerprint last. Readers only ever see a complete generation.
type Store struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT NOT NULL,
	fingerprint  TEXT NOT NULL,
	entity_id    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	service      TEXT NOT NULL,
	text         TEXT NOT NULL,
	tokens       INTEGER NOT NULL,
	embedding    BLOB NOT NULL,
	PRIMARY KEY (fingerprint, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_fingerprint ON chunks(fingerprint);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const metaCurrentFingerprint = "current_fingerprint"
const metaEngineName = "engine_name"

// OpenStore opens or creates the vector database for a project root
func OpenStore(root string, logger *logging.Logger) (*Store, error) {
	dir := filepath.Join(root, config.StateDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dbPath := filepath.Join(dir, "vectors.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize vector schema: %w", err)
	}

	return &Store{conn: conn, logger: logger, dbPath: dbPath}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// CurrentFingerprint returns the fingerprint of the active generation, or ""
// when no index has been built.
func (s *Store) CurrentFingerprint() (string, error) {
	var fp string
	err := s.conn.QueryRow("SELECT value FROM meta WHERE key = ?", metaCurrentFingerprint).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current fingerprint: %w", err)
	}
	return fp, nil
}

// WriteGeneration stores a complete set of embedded chunks for one manifest
// fingerprint and makes it the active generation. Older generations are
// pruned afterwards; a crash mid-prune leaves extra rows, never a torn index.
func (s *Store) WriteGeneration(fingerprint, engineName string, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk and embedding counts differ: %d != %d", len(chunks), len(embeddings))
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.Exec("DELETE FROM chunks WHERE fingerprint = ?", fingerprint); err != nil {
		return fmt.Errorf("failed to clear generation: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO chunks
		(id, fingerprint, entity_id, kind, service, text, tokens, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for i, c := range chunks {
		if _, err := stmt.Exec(c.ID, fingerprint, c.EntityID, c.Kind, c.Service, c.Text, c.Tokens,
			encodeVector(embeddings[i])); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	// Flip the active generation last so readers never observe a partial set
	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, metaCurrentFingerprint, fingerprint); err != nil {
		return fmt.Errorf("failed to set current fingerprint: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, metaEngineName, engineName); err != nil {
		return fmt.Errorf("failed to set engine name: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit generation: %w", err)
	}

	if _, err := s.conn.Exec("DELETE FROM chunks WHERE fingerprint != ?", fingerprint); err != nil {
		s.logger.Warn("Failed to prune stale index generations", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return nil
}

// StoredChunk is a chunk read back with its embedding
type StoredChunk struct {
	Chunk
	Embedding []float32
}

// LoadGeneration reads every chunk of the active generation. Returns a typed
// IndexMissing error when no generation exists and IndexStale when the active
// generation does not match the expected fingerprint.
func (s *Store) LoadGeneration(expectFingerprint string) ([]StoredChunk, error) {
	current, err := s.CurrentFingerprint()
	if err != nil {
		return nil, err
	}
	if current == "" {
		return nil, kberrors.New(kberrors.IndexMissing, "vector index has not been built", nil)
	}
	if expectFingerprint != "" && current != expectFingerprint {
		return nil, kberrors.New(kberrors.IndexStale,
			"vector index was built from an older manifest, re-run indexing", nil)
	}

	rows, err := s.conn.Query(`SELECT id, entity_id, kind, service, text, tokens, embedding
		FROM chunks WHERE fingerprint = ? ORDER BY id`, current)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []StoredChunk
	for rows.Next() {
		var sc StoredChunk
		var blob []byte
		if err := rows.Scan(&sc.ID, &sc.EntityID, &sc.Kind, &sc.Service, &sc.Text, &sc.Tokens, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		sc.Embedding = decodeVector(blob)
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	return out, nil
}

// ChunkCount returns the number of chunks in the active generation
func (s *Store) ChunkCount() (int, error) {
	current, err := s.CurrentFingerprint()
	if err != nil {
		return 0, err
	}
	if current == "" {
		return 0, nil
	}
	var n int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM chunks WHERE fingerprint = ?", current).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// encodeVector packs float32 values little-endian
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
