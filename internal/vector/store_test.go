package vector

import (
	"fmt"
	"reflect"
	"testing"

	kberrors "apikb/internal/errors"
	"apikb/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testChunks(n int, entityPrefix string) ([]Chunk, [][]float32) {
	chunks := make([]Chunk, n)
	embeds := make([][]float32, n)
	for i := range chunks {
		chunks[i] = Chunk{
			ID:       fmt.Sprintf("%s-chunk-%02d", entityPrefix, i),
			EntityID: fmt.Sprintf("endpoint:%s:GET /e%d", entityPrefix, i),
			Kind:     KindEndpoint,
			Service:  entityPrefix,
			Text:     fmt.Sprintf("Endpoint: GET /e%d", i),
			Tokens:   10,
		}
		embeds[i] = []float32{float32(i), 1, 0.5}
	}
	return chunks, embeds
}

func TestStoreGenerationRoundTrip(t *testing.T) {
	store := openTestStore(t)
	chunks, embeds := testChunks(3, "users")

	if err := store.WriteGeneration("fp1", "fake", chunks, embeds); err != nil {
		t.Fatalf("WriteGeneration failed: %v", err)
	}

	fp, err := store.CurrentFingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if fp != "fp1" {
		t.Errorf("CurrentFingerprint = %q, want fp1", fp)
	}

	stored, err := store.LoadGeneration("fp1")
	if err != nil {
		t.Fatalf("LoadGeneration failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d chunks, want 3", len(stored))
	}
	// Rows come back ordered by chunk id
	for i, sc := range stored {
		if sc.ID != chunks[i].ID || sc.Text != chunks[i].Text || sc.Tokens != chunks[i].Tokens {
			t.Errorf("chunk %d = %+v, want %+v", i, sc.Chunk, chunks[i])
		}
		if !reflect.DeepEqual(sc.Embedding, embeds[i]) {
			t.Errorf("embedding %d = %v, want %v", i, sc.Embedding, embeds[i])
		}
	}
}

func TestStoreEmptyIndexIsMissing(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.LoadGeneration(""); !kberrors.Is(err, kberrors.IndexMissing) {
		t.Errorf("err = %v, want INDEX_MISSING", err)
	}

	fp, err := store.CurrentFingerprint()
	if err != nil || fp != "" {
		t.Errorf("CurrentFingerprint = %q, %v; want empty, nil", fp, err)
	}
}

func TestStoreStaleGeneration(t *testing.T) {
	store := openTestStore(t)
	chunks, embeds := testChunks(1, "users")
	if err := store.WriteGeneration("fp1", "fake", chunks, embeds); err != nil {
		t.Fatal(err)
	}

	if _, err := store.LoadGeneration("fp2"); !kberrors.Is(err, kberrors.IndexStale) {
		t.Errorf("err = %v, want INDEX_STALE", err)
	}
}

func TestStoreGenerationSwap(t *testing.T) {
	store := openTestStore(t)

	oldChunks, oldEmbeds := testChunks(3, "users")
	if err := store.WriteGeneration("fp1", "fake", oldChunks, oldEmbeds); err != nil {
		t.Fatal(err)
	}

	newChunks, newEmbeds := testChunks(2, "orders")
	if err := store.WriteGeneration("fp2", "fake", newChunks, newEmbeds); err != nil {
		t.Fatal(err)
	}

	fp, _ := store.CurrentFingerprint()
	if fp != "fp2" {
		t.Errorf("CurrentFingerprint = %q, want fp2", fp)
	}

	stored, err := store.LoadGeneration("fp2")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("got %d chunks, want only the new generation", len(stored))
	}
	for _, sc := range stored {
		if sc.Service != "orders" {
			t.Errorf("old generation leaked into reads: %+v", sc.Chunk)
		}
	}

	n, err := store.ChunkCount()
	if err != nil || n != 2 {
		t.Errorf("ChunkCount = %d, %v; want 2, nil", n, err)
	}
}

func TestStoreRejectsMismatchedInput(t *testing.T) {
	store := openTestStore(t)
	chunks, embeds := testChunks(2, "users")

	if err := store.WriteGeneration("fp1", "fake", chunks, embeds[:1]); err == nil {
		t.Error("mismatched chunk and embedding counts should be rejected")
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	v := []float32{0, 1, -1, 0.5, 3.14159, -1e-7}
	got := decodeVector(encodeVector(v))
	if !reflect.DeepEqual(got, v) {
		t.Errorf("codec round trip = %v, want %v", got, v)
	}
}
