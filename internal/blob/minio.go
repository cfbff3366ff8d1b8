package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const objectPrefix = "uploads/"

// MinioConfig holds the S3 connection settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Minio stores blobs as objects under uploads/ in one bucket.
type Minio struct {
	client *minio.Client
	bucket string
}

var _ Storage = (*Minio)(nil)

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

	return raw, false, nil
}

// NewMinio connects and checks that the bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("minio bucket does not exist: %s", cfg.Bucket)
	}

	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

// Create is check-then-put; S3 has no exclusive create, so two concurrent
// uploads of the same name can still race.
func (m *Minio) Create(ctx context.Context, name string, r io.Reader) (int64, error) {
	if err := ValidName(name); err != nil {
		return 0, err
	}
	_, err := m.client.StatObject(ctx, m.bucket, objectPrefix+name, minio.StatObjectOptions{})
	if err == nil {
		return 0, ErrExists
	}
	if !isNoSuchKey(err) {
		return 0, err
	}

	info, err := m.client.PutObject(ctx, m.bucket, objectPrefix+name, r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", name, err)
	}
	return info.Size, nil
}

func (m *Minio) Open(ctx context.Context, name string) (*Object, error) {
	if err := ValidName(name); err != nil {
		return nil, ErrNotFound
	}
	obj, err := m.client.GetObject(ctx, m.bucket, objectPrefix+name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key.
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &Object{Content: obj, Size: st.Size, ModTime: st.LastModified}, nil
}

func (m *Minio) Remove(ctx context.Context, name string) error {
	if err := ValidName(name); err != nil {
		return ErrNotFound
	}
	if _, err := m.client.StatObject(ctx, m.bucket, objectPrefix+name, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrNotFound
		}
		return err
	}
	return m.client.RemoveObject(ctx, m.bucket, objectPrefix+name, minio.RemoveObjectOptions{})
}

func (m *Minio) List(ctx context.Context) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: objectPrefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, objectPrefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
