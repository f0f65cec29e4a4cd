package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	kberrors "apikb/internal/errors"
)

// ExportSnapshot writes a zstd-compressed copy of the manifest. Snapshots are
// the unit of drift detection: export one at a known-good point, later diff
// the live manifest against it.
func ExportSnapshot(pk *ProjectKnowledge, path string) error {
	data, err := json.Marshal(pk)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	if _, err := enc.Write(data); err != nil {
		enc.Close()        //nolint:errcheck
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("failed to finish snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// ImportSnapshot reads a snapshot written by ExportSnapshot
func ImportSnapshot(path string) (*ProjectKnowledge, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kberrors.New(kberrors.ManifestMissing, "snapshot not found: "+path, err)
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close() //nolint:errcheck

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, kberrors.New(kberrors.ManifestCorrupt, "snapshot is not zstd data", err)
	}
	defer dec.Close()

	var pk ProjectKnowledge
	if err := json.NewDecoder(dec.IOReadCloser()).Decode(&pk); err != nil {
		return nil, kberrors.New(kberrors.ManifestCorrupt, "snapshot contains invalid manifest JSON", err)
	}

	if pk.SchemaVersion != SchemaVersion {
		return nil, kberrors.New(kberrors.ManifestStale,
			fmt.Sprintf("snapshot schema version %d does not match current %d", pk.SchemaVersion, SchemaVersion), nil)
	}

	pk.Normalize()
	return &pk, nil
}
