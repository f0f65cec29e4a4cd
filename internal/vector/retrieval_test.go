package vector

import (
	"context"
	"testing"

	kberrors "apikb/internal/errors"
)

// fakeEngine returns a fixed vector for queries, letting tests craft exact
// similarity orderings through the stored embeddings.
type fakeEngine struct {
	vec []float32
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return len(f.vec) }
func (f *fakeEngine) Name() string    { return "fake" }

func seedIndex(t *testing.T, store *Store, chunks []Chunk, embeds [][]float32) {
	t.Helper()

	if err := store.WriteGeneration("fp1", "fake", chunks, embeds); err != nil {
		t.Fatalf("WriteGeneration failed: %v", err)
	}
}

func newTestRetriever(store *Store) *Retriever {
	return NewRetriever(&fakeEngine{vec: []float32{1, 0, 0}}, store, testLogger())
}

func TestSearchRanksBySimilarity(t *testing.T) {
	store := openTestStore(t)
	seedIndex(t, store, []Chunk{
		{ID: "a", EntityID: "endpoint:users:GET /a", Kind: KindEndpoint, Service: "users", Text: "a", Tokens: 10},
		{ID: "b", EntityID: "endpoint:users:GET /b", Kind: KindEndpoint, Service: "users", Text: "b", Tokens: 10},
		{ID: "c", EntityID: "endpoint:users:GET /c", Kind: KindEndpoint, Service: "users", Text: "c", Tokens: 10},
	}, [][]float32{
		{0, 1, 0}, // orthogonal to the query
		{1, 0, 0}, // exact match
		{1, 1, 0}, // partial match
	})

	results, err := newTestRetriever(store).Search(context.Background(), nil, Query{Text: "q"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].EntityID != "endpoint:users:GET /b" {
		t.Errorf("best match = %s, want the exact-direction chunk", results[0].EntityID)
	}
	if results[1].EntityID != "endpoint:users:GET /c" {
		t.Errorf("second = %s", results[1].EntityID)
	}
	if results[0].Score <= results[1].Score || results[1].Score <= results[2].Score {
		t.Errorf("scores not descending: %v %v %v", results[0].Score, results[1].Score, results[2].Score)
	}
}

func TestSearchTieBreaksByChunkID(t *testing.T) {
	store := openTestStore(t)
	same := []float32{1, 0, 0}
	seedIndex(t, store, []Chunk{
		{ID: "zz", EntityID: "endpoint:users:GET /z", Kind: KindEndpoint, Service: "users", Text: "z", Tokens: 10},
		{ID: "aa", EntityID: "endpoint:users:GET /a", Kind: KindEndpoint, Service: "users", Text: "a", Tokens: 10},
	}, [][]float32{same, same})

	results, err := newTestRetriever(store).Search(context.Background(), nil, Query{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}

	if results[0].EntityID != "endpoint:users:GET /a" {
		t.Errorf("equal scores should order by chunk id, got %s first", results[0].EntityID)
	}
}

func TestSearchDedupesByEntity(t *testing.T) {
	store := openTestStore(t)
	seedIndex(t, store, []Chunk{
		{ID: "a0", EntityID: "dto:users:Big", Kind: KindDTO, Service: "users", Text: "part0", Tokens: 10},
		{ID: "a1", EntityID: "dto:users:Big", Kind: KindDTO, Service: "users", Text: "part1", Tokens: 10},
	}, [][]float32{{1, 0, 0}, {1, 0, 0}})

	results, err := newTestRetriever(store).Search(context.Background(), nil, Query{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 1 {
		t.Errorf("got %d results, want one per entity", len(results))
	}
}

func TestSearchTokenBudgetSkipsNotStops(t *testing.T) {
	store := openTestStore(t)
	seedIndex(t, store, []Chunk{
		{ID: "a", EntityID: "e:a", Kind: KindEndpoint, Service: "s", Text: "a", Tokens: 60},
		{ID: "b", EntityID: "e:b", Kind: KindEndpoint, Service: "s", Text: "b", Tokens: 60},
		{ID: "c", EntityID: "e:c", Kind: KindEndpoint, Service: "s", Text: "c", Tokens: 30},
	}, [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0.5, 0.5, 0},
	})

	results, err := newTestRetriever(store).Search(context.Background(), nil, Query{Text: "q", TokenBudget: 100})
	if err != nil {
		t.Fatal(err)
	}

	// a fits (60), b would overflow (120) and is skipped, c still fits (90)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].EntityID != "e:a" || results[1].EntityID != "e:c" {
		t.Errorf("budget packing wrong: %s, %s", results[0].EntityID, results[1].EntityID)
	}
}

func TestSearchLimit(t *testing.T) {
	store := openTestStore(t)
	chunks, embeds := testChunks(5, "users")
	seedIndex(t, store, chunks, embeds)

	results, err := newTestRetriever(store).Search(context.Background(), nil, Query{Text: "q", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want limit of 2", len(results))
	}
}

func TestSearchFilters(t *testing.T) {
	store := openTestStore(t)
	seedIndex(t, store, []Chunk{
		{ID: "a", EntityID: "endpoint:users:GET /u", Kind: KindEndpoint, Service: "users", Text: "u", Tokens: 10},
		{ID: "b", EntityID: "dto:users:U", Kind: KindDTO, Service: "users", Text: "U", Tokens: 10},
		{ID: "c", EntityID: "endpoint:orders:GET /o", Kind: KindEndpoint, Service: "orders", Text: "o", Tokens: 10},
	}, [][]float32{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}})

	r := newTestRetriever(store)

	byKind, err := r.Search(context.Background(), nil, Query{Text: "q", Kind: KindDTO})
	if err != nil {
		t.Fatal(err)
	}
	if len(byKind) != 1 || byKind[0].Kind != KindDTO {
		t.Errorf("Kind filter = %+v", byKind)
	}

	bySvc, err := r.Search(context.Background(), nil, Query{Text: "q", Service: "orders"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bySvc) != 1 || bySvc[0].Service != "orders" {
		t.Errorf("Service filter = %+v", bySvc)
	}
}

func TestSearchRejectsStaleIndex(t *testing.T) {
	store := openTestStore(t)
	chunks, embeds := testChunks(1, "users")
	seedIndex(t, store, chunks, embeds)

	pk := sampleManifest() // fingerprint will not be "fp1"
	_, err := newTestRetriever(store).Search(context.Background(), pk, Query{Text: "q"})
	if !kberrors.Is(err, kberrors.IndexStale) {
		t.Errorf("err = %v, want INDEX_STALE", err)
	}
}

func TestIndexerBuildsAndSkips(t *testing.T) {
	store := openTestStore(t)
	engine := &fakeEngine{vec: []float32{1, 0, 0}}
	ix := NewIndexer(engine, store, 512, testLogger())
	pk := sampleManifest()

	stats, err := ix.Index(context.Background(), pk)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if stats.Skipped {
		t.Error("first build should not be skipped")
	}
	if want := len(ChunkManifest(pk, 512)); stats.Chunks != want {
		t.Errorf("Chunks = %d, want %d", stats.Chunks, want)
	}

	again, err := ix.Index(context.Background(), pk)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped {
		t.Error("rebuild over an unchanged manifest should be skipped")
	}

	// Retrieval over the built index answers with real chunks
	results, err := NewRetriever(engine, store, testLogger()).Search(context.Background(), pk, Query{Text: "user by id"})
	if err != nil {
		t.Fatalf("Search after Index failed: %v", err)
	}
	if len(results) == 0 {
		t.Error("expected results from the freshly built index")
	}
}
