package upload

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in           string
		wantEndpoint string
		wantSecure   bool
		wantErr      bool
	}{
		{"minio:9000", "minio:9000", false, false},
		{"http://minio:9000", "minio:9000", false, false},
		{"https://minio:9000", "minio:9000", true, false},
		{"http://minio:9000/", "minio:9000", false, false},
		{"http://minio:9000/foo", "", false, true},
		{"", "", false, true},
	}

	for _, tt := range tests {
		ep, secure, err := normaliseEndpoint(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("expected error for input %q", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tt.in, err)
		}
		if ep != tt.wantEndpoint || secure != tt.wantSecure {
			t.Fatalf("normaliseEndpoint(%q) = (%q,%v), want (%q,%v)", tt.in, ep, secure, tt.wantEndpoint, tt.wantSecure)
		}
	}
}

func TestNewMinioStorage_Incomplete(t *testing.T) {
	if _, err := NewMinioStorage(context.Background(), "minio:9000", "", "", "bucket"); err == nil {
		t.Fatal("expected error for incomplete configuration")
	}
}

func TestDiskStorage_PutAndCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "public", "uploads")
	d, err := NewDiskStorage(dir)
	if err != nil {
		t.Fatalf("NewDiskStorage: %v", err)
	}
	if err := d.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}

	loc, err := d.Put(context.Background(), "abc.png", strings.NewReader("data"), 4, "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if loc != filepath.Join(dir, "abc.png") {
		t.Fatalf("unexpected location %q", loc)
	}
	b, err := os.ReadFile(loc)
	if err != nil || string(b) != "data" {
		t.Fatalf("stored content = %q, %v", b, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestDiskStorage_RejectsPaths(t *testing.T) {
	d, err := NewDiskStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStorage: %v", err)
	}
	for _, name := range []string{"../x.png", "a/b.png", "..", "."} {
		if _, err := d.Put(context.Background(), name, strings.NewReader("x"), 1, "image/png"); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}

func TestDiskStorage_CanceledContext(t *testing.T) {
	d, err := NewDiskStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStorage: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Put(ctx, "a.png", strings.NewReader("x"), 1, "image/png"); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if _, err := os.Stat(filepath.Join(d.Dir, "a.png")); !os.IsNotExist(err) {
		t.Fatal("file should not exist after canceled upload")
	}
}

func TestDiskStorage_CheckMissingDir(t *testing.T) {
	d := &DiskStorage{Dir: filepath.Join(t.TempDir(), "missing")}
	if err := d.Check(context.Background()); err == nil {
		t.Fatal("expected error for missing dir")
	}
}
