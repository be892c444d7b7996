package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func mustParse(t *testing.T, raw string) URI {
	t.Helper()
	u, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func TestFS_PutGetExists(t *testing.T) {
	ctx := context.Background()
	fs := NewFS(t.TempDir())
	u := mustParse(t, "file://scratch/runs/r1/features.pkl")

	ok, err := fs.Exists(ctx, u)
	if err != nil {
		t.Fatalf("Exists error = %v", err)
	}
	if ok {
		t.Fatal("Exists = true before Put")
	}

	if err := fs.Put(ctx, u, []byte("payload")); err != nil {
		t.Fatalf("Put error = %v", err)
	}

	got, err := fs.Get(ctx, u)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q, want payload", got)
	}

	ok, err = fs.Exists(ctx, u)
	if err != nil {
		t.Fatalf("Exists error = %v", err)
	}
	if !ok {
		t.Error("Exists = false after Put")
	}
}

func TestFS_GetMissing(t *testing.T) {
	fs := NewFS(t.TempDir())
	_, err := fs.Get(context.Background(), mustParse(t, "file://scratch/nothing"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestFS_PutLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	fs := NewFS(root)
	u := mustParse(t, "file://scratch/runs/r1/features.pkl")

	if err := fs.Put(context.Background(), u, []byte("x")); err != nil {
		t.Fatalf("Put error = %v", err)
	}
	// Overwrite to exercise the rename-over-existing path.
	if err := fs.Put(context.Background(), u, []byte("y")); err != nil {
		t.Fatalf("Put overwrite error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "scratch", "runs", "r1"))
	if err != nil {
		t.Fatalf("ReadDir error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly the artifact file, got %d entries", len(entries))
	}
	if entries[0].Name() != "features.pkl" {
		t.Errorf("unexpected entry %q", entries[0].Name())
	}

	got, _ := fs.Get(context.Background(), u)
	if string(got) != "y" {
		t.Errorf("Get after overwrite = %q, want y", got)
	}
}

func TestMem_PutGetCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	u := mustParse(t, "mem://scratch/a")

	src := []byte("abc")
	if err := m.Put(ctx, u, src); err != nil {
		t.Fatalf("Put error = %v", err)
	}
	src[0] = 'Z' // caller mutation must not leak into the store

	got, err := m.Get(ctx, u)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("Get = %q, want abc", got)
	}

	got[0] = 'Q' // reader mutation must not leak either
	again, _ := m.Get(ctx, u)
	if string(again) != "abc" {
		t.Errorf("Get after reader mutation = %q, want abc", again)
	}
}

func TestMem_GetMissing(t *testing.T) {
	m := NewMem()
	_, err := m.Get(context.Background(), mustParse(t, "mem://scratch/missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestResolver_Dispatch(t *testing.T) {
	ctx := context.Background()
	r := NewResolver()
	r.Register("mem", NewMem())

	if err := r.Put(ctx, "mem://scratch/a", []byte("1")); err != nil {
		t.Fatalf("Put error = %v", err)
	}
	got, err := r.Get(ctx, "mem://scratch/a")
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if string(got) != "1" {
		t.Errorf("Get = %q, want 1", got)
	}

	ok, err := r.Exists(ctx, "mem://scratch/a")
	if err != nil || !ok {
		t.Errorf("Exists = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestResolver_UnknownScheme(t *testing.T) {
	r := NewResolver()
	r.Register("mem", NewMem())

	_, err := r.Get(context.Background(), "gs://bucket/key")
	if !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("Get = %v, want ErrUnknownScheme", err)
	}
}

func TestResolver_InvalidURI(t *testing.T) {
	r := NewResolver()
	if err := r.Put(context.Background(), "garbage", nil); !errors.Is(err, ErrInvalidURI) {
		t.Errorf("Put = %v, want ErrInvalidURI", err)
	}
}

func TestFetchUpload_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewResolver()
	r.Register("mem", NewMem())

	dir := t.TempDir()
	local := filepath.Join(dir, "in", "query.fasta")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte(">A\nMKV\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Upload(ctx, r, local, "mem://scratch/query.fasta"); err != nil {
		t.Fatalf("Upload error = %v", err)
	}

	dest := filepath.Join(dir, "out", "query.fasta")
	if err := Fetch(ctx, r, "mem://scratch/query.fasta", dest); err != nil {
		t.Fatalf("Fetch error = %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read fetched file: %v", err)
	}
	if string(data) != ">A\nMKV\n" {
		t.Errorf("fetched content = %q", data)
	}
}

func TestFetch_MissingArtifact(t *testing.T) {
	r := NewResolver()
	r.Register("mem", NewMem())

	err := Fetch(context.Background(), r, "mem://scratch/missing", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch = %v, want ErrNotFound", err)
	}
}
