package generator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"apikb/internal/logging"
	"apikb/internal/manifest"
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

const usersSource = `
from fastapi import FastAPI
from pydantic import BaseModel

class UserResponse(BaseModel):
    id: int
    name: str

@app.get("/users/{user_id}", response_model=UserResponse)
async def get_user(user_id: int):
    ...
`

const ordersSource = `
class CreateOrderRequest(BaseModel):
    item_id: int
    quantity: int

@app.post("/orders")
async def create_order(payload: CreateOrderRequest):
    ...
`

const configSource = `
import os

PORT = os.environ.get("PORT", "8080")
`

func fixtureProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writeFile(t, root, "users/api.py", usersSource)
	writeFile(t, root, "orders/api.py", ordersSource)
	writeFile(t, root, "config.py", configSource)
	return root
}

func newTestGenerator(root string) *Generator {
	return New(root, Config{Project: "shop"}, testLogger())
}

func TestGenerateFullScan(t *testing.T) {
	root := fixtureProject(t)
	gen := newTestGenerator(root)

	pk, stats, err := gen.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !stats.Full {
		t.Error("run without a prior manifest should be full")
	}
	if stats.FilesScanned != 3 || stats.FilesExtracted != 3 {
		t.Errorf("scanned=%d extracted=%d, want 3/3", stats.FilesScanned, stats.FilesExtracted)
	}

	users := pk.Service("users")
	if users == nil {
		t.Fatal("users service missing")
	}
	if len(users.Endpoints) != 1 || users.Endpoints[0].Path != "/users/{user_id}" {
		t.Errorf("users endpoints = %+v", users.Endpoints)
	}
	if len(users.DTOs) != 1 || users.DTOs[0].Name != "UserResponse" {
		t.Errorf("users DTOs = %+v", users.DTOs)
	}

	orders := pk.Service("orders")
	if orders == nil {
		t.Fatal("orders service missing")
	}
	if orders.Endpoints[0].RequestDTO != "CreateOrderRequest" {
		t.Errorf("orders endpoint = %+v", orders.Endpoints[0])
	}

	foundPort := false
	for _, ev := range pk.Environment {
		if ev.Name == "PORT" && ev.Default == "8080" {
			foundPort = true
		}
	}
	if !foundPort {
		t.Errorf("PORT env var missing: %+v", pk.Environment)
	}

	// The result must also be on disk
	loaded, err := gen.Store().Load()
	if err != nil {
		t.Fatalf("Load after Generate failed: %v", err)
	}
	if loaded.Fingerprint() != pk.Fingerprint() {
		t.Error("persisted manifest differs from the returned one")
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	root := fixtureProject(t)
	gen := newTestGenerator(root)

	first, _, err := gen.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := gen.Generate(context.Background(), first, nil)
	if err != nil {
		t.Fatal(err)
	}

	if first.Fingerprint() != second.Fingerprint() {
		t.Error("re-running over unchanged sources must not change the fingerprint")
	}
	for path, fm := range first.Files {
		if !second.Files[path].ExtractedAt.Equal(fm.ExtractedAt) {
			t.Errorf("%s: ExtractedAt not carried forward for unchanged content", path)
		}
	}
}

func TestGenerateFullWithPriorDoesNotDuplicate(t *testing.T) {
	root := fixtureProject(t)
	gen := newTestGenerator(root)

	first, _, err := gen.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(root, "orders", "api.py")); err != nil {
		t.Fatal(err)
	}

	second, _, err := gen.Generate(context.Background(), first, nil)
	if err != nil {
		t.Fatal(err)
	}

	users := second.Service("users")
	if users == nil {
		t.Fatal("users service missing")
	}
	if len(users.Endpoints) != 1 || len(users.DTOs) != 1 {
		t.Errorf("full rescan with a prior duplicated entities: %d endpoints, %d DTOs",
			len(users.Endpoints), len(users.DTOs))
	}
	if second.Service("orders") != nil {
		t.Error("full rescan must not resurrect entities from a deleted file")
	}
	if _, ok := second.Files["orders/api.py"]; ok {
		t.Error("deleted file survived a full rescan")
	}
}

func TestGenerateIncrementalModify(t *testing.T) {
	root := fixtureProject(t)
	gen := newTestGenerator(root)

	prior, _, err := gen.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "users/api.py", `
@app.get("/users")
async def list_users():
    ...
`)

	pk, stats, err := gen.Generate(context.Background(), prior, &ChangeSet{Modified: []string{"users/api.py"}})
	if err != nil {
		t.Fatalf("incremental Generate failed: %v", err)
	}

	if stats.Full {
		t.Error("run with a change set should not be full")
	}
	if stats.FilesExtracted != 1 {
		t.Errorf("FilesExtracted = %d, want 1", stats.FilesExtracted)
	}
	if stats.FilesCopied != 2 {
		t.Errorf("FilesCopied = %d, want 2 untouched files", stats.FilesCopied)
	}

	users := pk.Service("users")
	if len(users.Endpoints) != 1 || users.Endpoints[0].Path != "/users" {
		t.Errorf("stale entities survived the rewrite: %+v", users.Endpoints)
	}
	if len(users.DTOs) != 0 {
		t.Errorf("DTO removed from source should disappear: %+v", users.DTOs)
	}

	// Untouched service carried forward intact
	orders := pk.Service("orders")
	if orders == nil || len(orders.Endpoints) != 1 {
		t.Errorf("orders service should be unchanged: %+v", orders)
	}
}

func TestGenerateIncrementalAdd(t *testing.T) {
	root := fixtureProject(t)
	gen := newTestGenerator(root)

	prior, _, err := gen.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "billing/api.py", `
@app.get("/invoices")
async def invoices():
    ...
`)

	pk, _, err := gen.Generate(context.Background(), prior, &ChangeSet{Added: []string{"billing/api.py"}})
	if err != nil {
		t.Fatal(err)
	}

	if pk.Service("billing") == nil {
		t.Error("added file should introduce its service")
	}
	if pk.Service("users") == nil || pk.Service("orders") == nil {
		t.Error("existing services should survive an additive run")
	}
}

func TestGenerateIncrementalRemove(t *testing.T) {
	root := fixtureProject(t)
	gen := newTestGenerator(root)

	prior, _, err := gen.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	pk, stats, err := gen.Generate(context.Background(), prior, &ChangeSet{Removed: []string{"orders/api.py"}})
	if err != nil {
		t.Fatal(err)
	}

	if stats.FilesRemoved != 1 {
		t.Errorf("FilesRemoved = %d, want 1", stats.FilesRemoved)
	}
	if pk.Service("orders") != nil {
		t.Error("removed file's service should disappear")
	}
	if _, ok := pk.Files["orders/api.py"]; ok {
		t.Error("removed file should leave no metadata entry")
	}
	if pk.Service("users") == nil {
		t.Error("unrelated service should survive")
	}
}

func TestGenerateRootFileBelongsToProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", `
@app.get("/health")
def health():
    ...
`)

	pk, _, err := newTestGenerator(root).Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	svc := pk.Service("shop")
	if svc == nil {
		t.Fatalf("root-level file should belong to the project service: %+v", pk.Services)
	}
	if svc.Root != "." {
		t.Errorf("project service root = %q, want .", svc.Root)
	}
}

func TestGenerateWarnsOnUnresolvedDTO(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "users/api.py", `
@app.get("/users/{user_id}", response_model=GhostDto)
async def get_user(user_id: int):
    ...
`)

	pk, stats, err := newTestGenerator(root).Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unresolved DTO must not fail the run: %v", err)
	}

	if len(stats.Warnings) == 0 {
		t.Fatal("unresolved DTO reference should produce a warning")
	}
	fm := pk.Files["users/api.py"]
	if fm.Status != manifest.StatusParseWarning {
		t.Errorf("file status = %q, want parse-warning", fm.Status)
	}
	// The dangling reference stays in place for the reader to see
	if pk.Service("users").Endpoints[0].ResponseDTO != "GhostDto" {
		t.Error("dangling reference should not be cleared")
	}
}
