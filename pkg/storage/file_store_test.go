package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"selfiebot/pkg/domain"
)

var _ MediaStore = (*FileStore)(nil)
var _ MediaStore = (*MinioStore)(nil)

func TestFileStoreLayout(t *testing.T) {
	base := t.TempDir()
	fs, err := NewFileStore(base)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()

	key, err := fs.SaveOriginal(ctx, "79990001122", 7, ".JPG", []byte("orig"))
	if err != nil {
		t.Fatalf("save original: %v", err)
	}
	if key != "79990001122/0007.jpg" {
		t.Fatalf("original key = %q", key)
	}
	vkey, err := fs.SaveVariant(ctx, "79990001122", 7, domain.ModeScene, []byte("variant"))
	if err != nil {
		t.Fatalf("save variant: %v", err)
	}
	if vkey != "79990001122/0007_3.png" {
		t.Fatalf("variant key = %q", vkey)
	}
	if _, err := os.Stat(filepath.Join(base, "79990001122", "0007_3.png")); err != nil {
		t.Fatalf("variant not on disk: %v", err)
	}
	data, err := fs.Read(ctx, vkey)
	if err != nil || string(data) != "variant" {
		t.Fatalf("read variant: %q %v", data, err)
	}
}

func TestFileStoreListPagination(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir())
	ctx := context.Background()
	for i := 1; i <= 6; i++ {
		if _, err := fs.SaveOriginal(ctx, "u1", i, "png", []byte("x")); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	_, _ = fs.SaveVariant(ctx, "u1", 6, domain.ModeRealism, []byte("y"))

	page, err := fs.List(ctx, "u1", 0, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 7 || len(page.Files) != 5 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Files[0] != "u1/0006_1.png" || page.Files[1] != "u1/0006.png" {
		t.Fatalf("expected descending filename order, got %v", page.Files)
	}

	next, _ := fs.List(ctx, "u1", 5, 5)
	if len(next.Files) != 2 || next.Files[1] != "u1/0001.png" {
		t.Fatalf("unexpected second page %v", next.Files)
	}
	past, _ := fs.List(ctx, "u1", 50, 5)
	if len(past.Files) != 0 || past.Total != 7 {
		t.Fatalf("offset past end should return empty page, got %+v", past)
	}
	empty, err := fs.List(ctx, "nobody", 0, 5)
	if err != nil || empty.Total != 0 {
		t.Fatalf("missing user should list empty, got %+v %v", empty, err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir())
	ctx := context.Background()
	if _, err := fs.Read(ctx, "../etc/passwd"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := fs.SaveOriginal(ctx, "../x", 1, "jpg", nil); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for user id, got %v", err)
	}
}

func TestFileStoreDeleteUser(t *testing.T) {
	base := t.TempDir()
	fs, _ := NewFileStore(base)
	ctx := context.Background()
	_, _ = fs.SaveOriginal(ctx, "u1", 1, "jpg", []byte("a"))
	_, _ = fs.SaveOriginal(ctx, "u2", 1, "jpg", []byte("b"))
	if err := fs.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "u1")); !os.IsNotExist(err) {
		t.Fatalf("user dir should be gone")
	}
	if page, _ := fs.List(ctx, "u2", 0, 5); page.Total != 1 {
		t.Fatalf("other user must be untouched")
	}
	if err := fs.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestFileStoreSweep(t *testing.T) {
	base := t.TempDir()
	fs, _ := NewFileStore(base)
	ctx := context.Background()
	oldKey, _ := fs.SaveOriginal(ctx, "old", 1, "jpg", []byte("a"))
	mixedOld, _ := fs.SaveOriginal(ctx, "mixed", 1, "jpg", []byte("b"))
	_, _ = fs.SaveOriginal(ctx, "mixed", 2, "jpg", []byte("c"))

	past := time.Now().Add(-400 * 24 * time.Hour)
	for _, key := range []string{oldKey, mixedOld} {
		if err := os.Chtimes(filepath.Join(base, filepath.FromSlash(key)), past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed, err := fs.Sweep(ctx, time.Now().Add(-365*24*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed %d files, want 2", removed)
	}
	if _, err := os.Stat(filepath.Join(base, "old")); !os.IsNotExist(err) {
		t.Fatalf("empty user dir should be pruned")
	}
	page, _ := fs.List(ctx, "mixed", 0, 5)
	if page.Total != 1 || page.Files[0] != "mixed/0002.jpg" {
		t.Fatalf("unexpected remaining files %+v", page)
	}
}

func TestExtensionForMIME(t *testing.T) {
	cases := map[string]string{
		"image/png":  "png",
		"image/jpeg": "jpg",
		"image/webp": "webp",
		"":           "jpg",
	}
	for in, want := range cases {
		if got := ExtensionForMIME(in); got != want {
			t.Fatalf("ExtensionForMIME(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ms, err := Open(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open file backend: %v", err)
	}
	if _, ok := ms.(*FileStore); !ok {
		t.Fatalf("expected *FileStore, got %T", ms)
	}
	if _, err := Open(Config{Backend: "ftp", Dir: t.TempDir()}); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
	if _, err := Open(Config{Backend: "file"}); err == nil {
		t.Fatalf("expected missing dir error")
	}
}
