package digest_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scidataflow/internal/digest"
)

func TestFile(t *testing.T) {
	t.Run("known digest", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "x.tsv")
		if err := os.WriteFile(path, []byte("a\n"), 0644); err != nil {
			t.Fatal(err)
		}

		md5, size, err := digest.File(path)
		if err != nil {
			t.Fatalf("File() error = %v", err)
		}
		if md5 != "60b725f10c9c85c70d97880dfe8191b3" {
			t.Errorf("md5 = %q, want %q", md5, "60b725f10c9c85c70d97880dfe8191b3")
		}
		if size != 2 {
			t.Errorf("size = %d, want 2", size)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "empty")
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatal(err)
		}

		md5, size, err := digest.File(path)
		if err != nil {
			t.Fatalf("File() error = %v", err)
		}
		if md5 != "d41d8cd98f00b204e9800998ecf8427e" {
			t.Errorf("md5 = %q, want empty-input digest", md5)
		}
		if size != 0 {
			t.Errorf("size = %d, want 0", size)
		}
	})

	t.Run("larger than one buffer", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "big")
		data := make([]byte, digest.BufferSize*2+17)
		for i := range data {
			data[i] = byte(i % 251)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}

		md5, size, err := digest.File(path)
		if err != nil {
			t.Fatalf("File() error = %v", err)
		}
		if size != int64(len(data)) {
			t.Errorf("size = %d, want %d", size, len(data))
		}

		// The streaming digest must match hashing the bytes in one shot.
		r := digest.NewReader(strings.NewReader(string(data)))
		if _, err := io.Copy(io.Discard, r); err != nil {
			t.Fatal(err)
		}
		if r.Sum() != md5 {
			t.Errorf("Reader digest %q != File digest %q", r.Sum(), md5)
		}
		if r.BytesRead() != int64(len(data)) {
			t.Errorf("BytesRead() = %d, want %d", r.BytesRead(), len(data))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, _, err := digest.File(filepath.Join(t.TempDir(), "nope"))
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestStat(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	exists, size, mtime, err := digest.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !exists {
		t.Error("exists = false, want true")
	}
	if size != 3 {
		t.Errorf("size = %d, want 3", size)
	}
	if mtime.IsZero() {
		t.Error("mtime is zero")
	}

	exists, _, _, err = digest.Stat(filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if exists {
		t.Error("exists = true for missing file")
	}
}

func TestReader(t *testing.T) {
	t.Parallel()
	r := digest.NewReader(strings.NewReader("a\n"))
	buf := make([]byte, 1)
	for {
		_, err := r.Read(buf)
		if err != nil {
			break
		}
	}
	if got := r.Sum(); got != "60b725f10c9c85c70d97880dfe8191b3" {
		t.Errorf("Sum() = %q, want known digest", got)
	}
	if r.BytesRead() != 2 {
		t.Errorf("BytesRead() = %d, want 2", r.BytesRead())
	}
}
