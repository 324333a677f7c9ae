package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// writeSource writes n pseudo-random bytes to a temp file and returns its path and content.
func writeSource(t *testing.T, n int) (string, []byte) {
	t.Helper()
	data := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(data)
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path, data
}

func assertSameBytes(t *testing.T, path string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if len(got) != len(want) {
		t.Fatalf("size = %d, want %d", len(got), len(want))
	}
	if sha256.Sum256(got) != sha256.Sum256(want) {
		t.Fatal("content hash mismatch")
	}
}

func TestMaterialize_PlainPath(t *testing.T) {
	// Larger than the copy buffer and not a multiple of it.
	src, data := writeSource(t, 3*copyBufferSize+123)
	cache := t.TempDir()

	m := NewMaterializer(cache, nil)
	res, err := m.Materialize(context.Background(), src)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if res.Path != filepath.Join(cache, CacheFileName) {
		t.Errorf("Path = %q, want fixed cache destination", res.Path)
	}
	if res.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", res.Size, len(data))
	}
	assertSameBytes(t, res.Path, data)
}

func TestMaterialize_FileURI(t *testing.T) {
	src, data := writeSource(t, 1000)

	m := NewMaterializer(t.TempDir(), nil)
	res, err := m.Materialize(context.Background(), "file://"+filepath.ToSlash(src))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	assertSameBytes(t, res.Path, data)
}

func TestMaterialize_HTTP(t *testing.T) {
	data := bytes.Repeat([]byte("frame"), 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clip.mp4" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(data)
	}))
	defer srv.Close()

	m := NewMaterializer(t.TempDir(), srv.Client())

	res, err := m.Materialize(context.Background(), srv.URL+"/clip.mp4")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	assertSameBytes(t, res.Path, data)

	_, err = m.Materialize(context.Background(), srv.URL+"/missing.mp4")
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want *IOError", err)
	}
	if ioErr.Op != "open" {
		t.Errorf("Op = %q, want open", ioErr.Op)
	}
}

func TestMaterialize_OverwritesPrevious(t *testing.T) {
	big, _ := writeSource(t, 10000)
	small, smallData := writeSource(t, 10)

	m := NewMaterializer(t.TempDir(), nil)
	if _, err := m.Materialize(context.Background(), big); err != nil {
		t.Fatalf("first Materialize: %v", err)
	}
	res, err := m.Materialize(context.Background(), small)
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	assertSameBytes(t, res.Path, smallData)
}

func TestMaterialize_DestinationOntoItself(t *testing.T) {
	m := NewMaterializer(t.TempDir(), nil)
	data := []byte("0123456789")
	if err := os.WriteFile(m.Destination(), data, 0o644); err != nil {
		t.Fatal(err)
	}

	refs := []string{
		m.Destination(),
		"file://" + filepath.ToSlash(m.Destination()),
	}
	link := filepath.Join(t.TempDir(), "link.mp4")
	if err := os.Symlink(m.Destination(), link); err == nil {
		refs = append(refs, link)
	}

	for _, ref := range refs {
		res, err := m.Materialize(context.Background(), ref)
		if err != nil {
			t.Fatalf("Materialize(%s): %v", ref, err)
		}
		if res.Size != int64(len(data)) {
			t.Errorf("Materialize(%s) Size = %d, want %d", ref, res.Size, len(data))
		}
		assertSameBytes(t, res.Path, data)
	}
}

func TestMaterialize_NoTempFilesLeft(t *testing.T) {
	src, _ := writeSource(t, 100)
	cache := t.TempDir()
	m := NewMaterializer(cache, nil)

	if _, err := m.Materialize(context.Background(), src); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if _, err := m.Materialize(context.Background(), filepath.Join(cache, "missing.mp4")); err == nil {
		t.Fatal("expected error for missing source")
	}

	entries, err := os.ReadDir(cache)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != CacheFileName {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("cache dir holds %v, want only %s", names, CacheFileName)
	}
}

func TestMaterialize_EmptySource(t *testing.T) {
	src, _ := writeSource(t, 0)

	m := NewMaterializer(t.TempDir(), nil)
	res, err := m.Materialize(context.Background(), src)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if res.Size != 0 {
		t.Errorf("Size = %d, want 0", res.Size)
	}
}

func TestMaterialize_Failures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		ref  string
	}{
		{"empty", ""},
		{"missing file", filepath.Join(dir, "nope.mp4")},
		{"missing file uri", "file://" + filepath.ToSlash(filepath.Join(dir, "nope.mp4"))},
		{"directory", dir},
		{"remote file host", "file://example.com/clip.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := t.TempDir()
			m := NewMaterializer(cache, nil)
			_, err := m.Materialize(context.Background(), tt.ref)

			var ioErr *IOError
			if !errors.As(err, &ioErr) {
				t.Fatalf("err = %v, want *IOError", err)
			}
			if _, statErr := os.Stat(m.Destination()); !os.IsNotExist(statErr) {
				t.Errorf("destination should not exist after failure, stat err = %v", statErr)
			}
		})
	}
}

func TestMaterialize_UnwritableCache(t *testing.T) {
	src, _ := writeSource(t, 100)

	// A regular file where the cache directory should be.
	blocker := filepath.Join(t.TempDir(), "cache")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMaterializer(blocker, nil)
	_, err := m.Materialize(context.Background(), src)
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want *IOError", err)
	}
	if ioErr.Op != "create" {
		t.Errorf("Op = %q, want create", ioErr.Op)
	}
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestCopyBuffered_WriteError(t *testing.T) {
	src := bytes.NewReader(make([]byte, 5*copyBufferSize))
	n, op, err := copyBuffered(context.Background(), &failingWriter{after: 2}, src)
	if err == nil {
		t.Fatal("expected error")
	}
	if op != "write" {
		t.Errorf("op = %q, want write", op)
	}
	if n != 2*copyBufferSize {
		t.Errorf("copied %d bytes before failure, want %d", n, 2*copyBufferSize)
	}
}
