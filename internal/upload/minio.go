package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectPrefix is prepended to upload filenames to form object keys.
const ObjectPrefix = "uploads/"

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	// No scheme: host:port, plain HTTP as for a local MinIO.
	return raw, false, nil
}

// MinioStorage stores uploads in an S3-compatible bucket.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage connects to the endpoint and checks the bucket exists.
func NewMinioStorage(ctx context.Context, rawEndpoint, accessKey, secretKey, bucket string) (*MinioStorage, error) {
	if rawEndpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, fmt.Errorf("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	m := &MinioStorage{client: client, bucket: bucket}
	if err := m.Check(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func objectKey(name string) string {
	return ObjectPrefix + name
}

// Put uploads r as uploads/<name>.
func (m *MinioStorage) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	key := objectKey(name)
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return m.bucket + "/" + key, nil
}

// Check verifies the bucket exists.
func (m *MinioStorage) Check(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("minio bucket does not exist: %s", m.bucket)
	}
	return nil
}

// ServeHTTP serves an uploaded object. The request path is the filename,
// so mount it behind http.StripPrefix.
func (m *MinioStorage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := path.Base(path.Clean("/" + r.URL.Path))
	if name == "/" || name == "." {
		http.NotFound(w, r)
		return
	}

	obj, err := m.client.GetObject(r.Context(), m.bucket, objectKey(name), minio.GetObjectOptions{})
	if err != nil {
		http.Error(w, "storage error", http.StatusBadGateway)
		return
	}
	defer func() { _ = obj.Close() }()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "storage error", http.StatusBadGateway)
		return
	}

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	http.ServeContent(w, r, name, info.LastModified, obj)
}
