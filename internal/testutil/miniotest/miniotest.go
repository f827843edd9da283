// Package miniotest starts a throwaway MinIO container with one bucket for
// integration tests.
package miniotest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

const (
	AccessKey = "minio"
	SecretKey = "minio123"
)

// Server describes a running MinIO container.
type Server struct {
	Endpoint string
	Bucket   string
}

// Start runs MinIO, waits for it to become live and creates bucket.
// MOARD_MINIO_TEST_TAG overrides the image tag.
func Start(t *testing.T, bucket string) Server {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	tag := os.Getenv("MOARD_MINIO_TEST_TAG")
	if tag == "" {
		tag = "RELEASE.2024-01-31T20-20-33Z"
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "minio/minio",
		Tag:        tag,
		Cmd:        []string{"server", "/data"},
		Env: []string{
			"MINIO_ROOT_USER=" + AccessKey,
			"MINIO_ROOT_PASSWORD=" + SecretKey,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		t.Fatalf("could not start minio: %v", err)
	}
	_ = resource.Expire(300)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	endpoint := "localhost:" + resource.GetPort("9000/tcp")
	if err := pool.Retry(func() error {
		resp, err := http.Get("http://" + endpoint + "/minio/health/live")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("minio not ready: %d", resp.StatusCode)
		}
		return nil
	}); err != nil {
		t.Fatalf("minio not ready: %v", err)
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(AccessKey, SecretKey, ""),
	})
	if err != nil {
		t.Fatalf("minio client: %v", err)
	}
	if err := mc.MakeBucket(context.Background(), bucket, minio.MakeBucketOptions{}); err != nil {
		exists, err2 := mc.BucketExists(context.Background(), bucket)
		if err2 != nil || !exists {
			t.Fatalf("could not create or verify bucket: %v / %v", err, err2)
		}
	}
	return Server{Endpoint: endpoint, Bucket: bucket}
}
