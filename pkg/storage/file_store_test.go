package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePutGetDelete(t *testing.T) {
	base := t.TempDir()
	fs, err := NewFileStore(base)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	key := AppraisalImageKey("a-1", "source.jpg")
	if key != "appraisals/a-1/source.jpg" {
		t.Fatalf("key = %q", key)
	}
	if err := fs.Put(ctx, key, bytes.NewReader([]byte("jpeg-bytes")), 10, "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, contentType, err := fs.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "jpeg-bytes" || contentType != "image/jpeg" {
		t.Fatalf("get = %q %q", data, contentType)
	}
	if url, err := fs.URL(ctx, key, 0); err != nil || url != "" {
		t.Fatalf("url = %q %v", url, err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := fs.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "appraisals", "a-1")); !os.IsNotExist(err) {
		t.Fatalf("expected empty appraisal dir to be removed, got %v", err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	for _, key := range []string{"../outside.jpg", "/etc/passwd", "", "appraisals/../../x"} {
		if err := fs.Put(context.Background(), key, bytes.NewReader(nil), 0, ""); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"photo 1.JPG":       "photo_1.JPG",
		"../../etc/passwd":  "passwd",
		`C:\Users\me\a.png`: "a.png",
		"":                  "source.jpg",
		"...":               "source.jpg",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
