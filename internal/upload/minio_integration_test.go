//go:build integration

package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"moard/internal/testutil/miniotest"
)

func TestMinioStorage_PutAndServe(t *testing.T) {
	srv := miniotest.Start(t, "avatars")
	ctx := context.Background()

	m, err := NewMinioStorage(ctx, "http://"+srv.Endpoint, miniotest.AccessKey, miniotest.SecretKey, srv.Bucket)
	if err != nil {
		t.Fatalf("NewMinioStorage: %v", err)
	}
	if err := m.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}

	body := "\x89PNG\r\n\x1a\nfake image"
	loc, err := m.Put(ctx, "u1.png", strings.NewReader(body), int64(len(body)), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if loc != "avatars/uploads/u1.png" {
		t.Errorf("location = %q", loc)
	}

	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/u1.png", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET = %d", rr.Code)
	}
	got, _ := io.ReadAll(rr.Body)
	if string(got) != body {
		t.Errorf("served %q, want %q", got, body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}

	rr = httptest.NewRecorder()
	m.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing.png", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing object: got %d, want 404", rr.Code)
	}
}

func TestNewMinioStorage_MissingBucket(t *testing.T) {
	srv := miniotest.Start(t, "avatars")
	if _, err := NewMinioStorage(context.Background(), srv.Endpoint, miniotest.AccessKey, miniotest.SecretKey, "nope"); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}
