package smartsync

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"apikb/internal/generator"
	"apikb/internal/logging"
	"apikb/internal/manifest"
	"apikb/internal/scanner"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func newTestSyncer(t *testing.T, root string) *Syncer {
	t.Helper()

	gen := generator.New(root, generator.Config{Project: "shop"}, testLogger())
	return New(root, scanner.Config{}, gen, testLogger())
}

func seedProject(t *testing.T, root string) {
	t.Helper()

	writeFile(t, root, "users/api.py", `
@app.get("/users")
def list_users():
    ...
`)
	writeFile(t, root, "orders/api.py", `
@app.post("/orders")
def create_order():
    ...
`)
}

func TestPlanRequiresPrior(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)

	cs, err := s.Plan(nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if cs != nil {
		t.Error("Plan without a prior manifest should signal full scan with nil")
	}

	cs, err = s.Plan(manifest.New("shop", root))
	if err != nil {
		t.Fatal(err)
	}
	if cs != nil {
		t.Error("Plan over an empty hash map should signal full scan with nil")
	}
}

func TestPlanDetectsChanges(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)

	prior, _, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("initial Sync failed: %v", err)
	}

	writeFile(t, root, "users/api.py", "# rewritten\n")
	writeFile(t, root, "billing/api.py", "# new\n")
	if err := os.Remove(filepath.Join(root, "orders", "api.py")); err != nil {
		t.Fatal(err)
	}

	cs, err := s.Plan(prior)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	sort.Strings(cs.Added)
	if len(cs.Added) != 1 || cs.Added[0] != "billing/api.py" {
		t.Errorf("Added = %v", cs.Added)
	}
	if len(cs.Modified) != 1 || cs.Modified[0] != "users/api.py" {
		t.Errorf("Modified = %v", cs.Modified)
	}
	if len(cs.Removed) != 1 || cs.Removed[0] != "orders/api.py" {
		t.Errorf("Removed = %v", cs.Removed)
	}
}

func TestPlanUnreadableFileIsAbsent(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)

	prior, _, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Replace the file with a dangling symlink so hashing fails
	path := filepath.Join(root, "users", "api.py")
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "gone.py"), path); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	cs, err := s.Plan(prior)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(cs.Modified) != 0 {
		t.Errorf("unreadable file must not count as modified: %v", cs.Modified)
	}
	if len(cs.Removed) != 1 || cs.Removed[0] != "users/api.py" {
		t.Errorf("unreadable file should be treated as absent: %v", cs.Removed)
	}
}

func TestPlanCleanTreeIsEmpty(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)

	prior, _, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	cs, err := s.Plan(prior)
	if err != nil {
		t.Fatal(err)
	}
	if cs == nil || cs.Total() != 0 {
		t.Errorf("clean tree should plan zero work: %+v", cs)
	}
}

func TestSyncNoOpReturnsPrior(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)

	first, firstStats, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !firstStats.Full {
		t.Error("first sync should run a full scan")
	}

	second, stats, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesExtracted != 0 || stats.FilesRemoved != 0 {
		t.Errorf("no-op sync should do no extraction work: %+v", stats)
	}
	if second.Fingerprint() != first.Fingerprint() {
		t.Error("no-op sync changed the manifest")
	}
}

func TestSyncIncrementalRun(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)

	if _, _, err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "users/api.py", `
@app.get("/users/{user_id}")
def get_user(user_id: int):
    ...
`)

	pk, stats, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if stats.Full {
		t.Error("change to one file should run incrementally")
	}
	if stats.FilesExtracted != 1 {
		t.Errorf("FilesExtracted = %d, want 1", stats.FilesExtracted)
	}
	users := pk.Service("users")
	if users == nil || users.Endpoints[0].Path != "/users/{user_id}" {
		t.Errorf("users service not updated: %+v", users)
	}
}

func TestSyncDegradesOnCorruptManifest(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)

	if _, _, err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	path := manifest.DefaultPath(root)
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	pk, stats, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("corrupt manifest should degrade to full scan, got: %v", err)
	}
	if !stats.Full {
		t.Error("recovery run should be a full scan")
	}
	if pk.Service("users") == nil || pk.Service("orders") == nil {
		t.Error("recovered manifest incomplete")
	}
}

func TestSyncStateTransitions(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)

	if s.State() != StateIdle {
		t.Errorf("initial state = %q, want idle", s.State())
	}
	if _, _, err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateIdle {
		t.Errorf("state after sync = %q, want idle", s.State())
	}
}
