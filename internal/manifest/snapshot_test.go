package manifest

import (
	"os"
	"path/filepath"
	"testing"

	kberrors "apikb/internal/errors"
)

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.zst")

	want := multiServiceManifest()
	if err := ExportSnapshot(want, path); err != nil {
		t.Fatalf("ExportSnapshot failed: %v", err)
	}

	got, err := ImportSnapshot(path)
	if err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}

	if got.Fingerprint() != want.Fingerprint() {
		t.Error("snapshot round trip changed the manifest fingerprint")
	}
}

func TestSnapshotCompresses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.zst")

	pk := multiServiceManifest()
	if err := ExportSnapshot(pk, path); err != nil {
		t.Fatal(err)
	}

	raw := mustMarshal(t, pk)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= int64(len(raw)) {
		t.Errorf("snapshot (%d bytes) should be smaller than raw JSON (%d bytes)", info.Size(), len(raw))
	}
}

func TestSnapshotMissing(t *testing.T) {
	_, err := ImportSnapshot(filepath.Join(t.TempDir(), "nope.zst"))
	if !kberrors.Is(err, kberrors.ManifestMissing) {
		t.Errorf("err = %v, want MANIFEST_MISSING", err)
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.zst")
	if err := os.WriteFile(path, []byte("not zstd at all"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ImportSnapshot(path)
	if !kberrors.Is(err, kberrors.ManifestCorrupt) {
		t.Errorf("err = %v, want MANIFEST_CORRUPT", err)
	}
}

func TestSnapshotStaleSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.zst")

	pk := multiServiceManifest()
	pk.SchemaVersion = 1
	if err := ExportSnapshot(pk, path); err != nil {
		t.Fatal(err)
	}

	_, err := ImportSnapshot(path)
	if !kberrors.Is(err, kberrors.ManifestStale) {
		t.Errorf("err = %v, want MANIFEST_STALE", err)
	}
}
