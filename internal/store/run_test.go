package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func initTestDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "gmshgen.db")); err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() {
		if err := CloseDB(); err != nil {
			t.Fatalf("CloseDB() error = %v", err)
		}
	})
}

func TestRunStoreCreateAndGet(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()
	s := NewRunStore()
	now := time.Now().UTC()

	rec := &RunRecord{
		ID:              "run-1",
		Kind:            "pipeline",
		Status:          "success",
		Prompt:          "Create a simple 2D square mesh",
		OutputFilename:  "generated_mesh",
		SynthesisSource: "fallback",
		Template:        "square",
		Message:         "Mesh generated successfully",
		Script:          "Mesh 2;",
		Log:             "Info    : Done meshing 2D",
		DurationMs:      42,
		CreatedAt:       now,
	}
	artifacts := []RunArtifactRecord{
		{Kind: "native_mesh", Name: "generated_mesh.msh", Size: 30, CreatedAt: now},
		{Kind: "script", Name: "generated_mesh.geo", Size: 7, CreatedAt: now},
	}
	if err := s.Create(ctx, rec, artifacts); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatalf("GetByID() returned nil")
	}
	if got.Template != "square" || got.SynthesisSource != "fallback" || got.DurationMs != 42 {
		t.Fatalf("unexpected record: %+v", got)
	}

	files, err := s.ListArtifacts(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListArtifacts() error = %v", err)
	}
	if len(files) != 2 || files[0].Name != "generated_mesh.geo" {
		t.Fatalf("unexpected artifacts: %+v", files)
	}

	missing, err := s.GetByID(ctx, "nope")
	if err != nil {
		t.Fatalf("GetByID(missing) error = %v", err)
	}
	if missing != nil {
		t.Fatalf("GetByID(missing) = %+v, want nil", missing)
	}
}

func TestRunStoreCreateIsAtomic(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()
	s := NewRunStore()
	now := time.Now().UTC()

	dup := []RunArtifactRecord{
		{Kind: "script", Name: "a.geo", CreatedAt: now},
		{Kind: "script", Name: "a.geo", CreatedAt: now},
	}
	if err := s.Create(ctx, &RunRecord{ID: "run-1", Kind: "script", Status: "success", OutputFilename: "a", CreatedAt: now}, dup); err == nil {
		t.Fatalf("Create() with duplicate artifacts should fail")
	}
	got, err := s.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Fatalf("run row must be rolled back, got %+v", got)
	}
}

func TestRunStoreListFiltersAndPages(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()
	s := NewRunStore()
	base := time.Now().UTC().Add(-time.Hour)

	for i, status := range []string{"success", "error", "success"} {
		rec := &RunRecord{
			ID:             "run-" + string(rune('a'+i)),
			Kind:           "pipeline",
			Status:         status,
			OutputFilename: "mesh",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Create(ctx, rec, nil); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	items, total, err := s.List(ctx, RunQuery{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 || len(items) != 3 || items[0].ID != "run-c" {
		t.Fatalf("List() = %d items (total %d), first %q", len(items), total, items[0].ID)
	}

	items, total, err = s.List(ctx, RunQuery{Status: "success", PageSize: 1, Page: 2})
	if err != nil {
		t.Fatalf("List(filtered) error = %v", err)
	}
	if total != 2 || len(items) != 1 || items[0].ID != "run-a" {
		t.Fatalf("List(filtered) = %+v total %d", items, total)
	}

	n, err := s.PurgeBefore(ctx, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("PurgeBefore() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PurgeBefore() = %d, want 1", n)
	}
}
